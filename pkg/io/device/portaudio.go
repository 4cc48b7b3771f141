//go:build portaudio
// +build portaudio

package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type portAudioDevice struct{}

// Default returns the system default input through PortAudio.
func Default() Device {
	return portAudioDevice{}
}

func (portAudioDevice) Name() string {
	return "portaudio-default-input"
}

func (portAudioDevice) Available() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer portaudio.Terminate()
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (portAudioDevice) Open(sampleRate, framesPerBuffer int) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &portAudioStream{sampleRate: sampleRate, framesPerBuffer: framesPerBuffer}, nil
}

type portAudioStream struct {
	mu              sync.Mutex
	sampleRate      int
	framesPerBuffer int
	stream          *portaudio.Stream
	closed          bool
}

func (s *portAudioStream) Start(onSamples func([]int16)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}
	if s.stream != nil {
		return errors.New("stream already started")
	}

	cb := func(in []int16) {
		block := make([]int16, len(in))
		copy(block, in)
		onSamples(block)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), s.framesPerBuffer, cb)
	if err != nil {
		return classify(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return classify(err)
	}
	s.stream = stream
	return nil
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			firstErr = fmt.Errorf("failed to stop audio stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audio stream: %w", err)
		}
		s.stream = nil
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func classify(err error) error {
	switch {
	case errors.Is(err, portaudio.DeviceUnavailable),
		errors.Is(err, portaudio.InvalidDevice),
		errors.Is(err, portaudio.HostApiNotFound):
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
