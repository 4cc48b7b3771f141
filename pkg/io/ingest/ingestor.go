package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/capture"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/media"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("empty file")
	ErrInvalidFile       = errors.New("could not process audio file")
	ErrSessionClosed     = errors.New("capture session already closed")
	ErrNothingCaptured   = errors.New("no audio captured")
)

const framesPerBuffer = 1024

// Ingestor turns live captures and uploaded files into AudioUnits.
type Ingestor struct {
	mic       device.Device
	codec     *media.Codec
	files     config.FilesConfig
	capture   config.CaptureConfig
	ephemeral *Ephemeral
	logger    *Logger.Logger

	tick time.Duration
	now  func() time.Time
}

func New(mic device.Device, codec *media.Codec, files config.FilesConfig, capCfg config.CaptureConfig, logger *Logger.Logger) *Ingestor {
	if capCfg.SampleRate <= 0 {
		capCfg.SampleRate = media.TargetSampleRate
	}
	if capCfg.MaxSeconds <= 0 {
		capCfg.MaxSeconds = 3600
	}
	return &Ingestor{
		mic:       mic,
		codec:     codec,
		files:     files,
		capture:   capCfg,
		ephemeral: NewEphemeral(),
		logger:    logger.Named("ingest"),
		tick:      time.Second,
		now:       time.Now,
	}
}

// Ephemeral exposes the handle table so callers can resolve unit URLs.
func (i *Ingestor) Ephemeral() *Ephemeral {
	return i.ephemeral
}

// Session is one live capture. It owns its device handle until EndCapture or Discard.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	mu       sync.Mutex
	stream   device.Stream
	ring     capture.Buffer
	stopTick chan struct{}
	tickDone chan struct{}
	closed   bool
	url      string
	dropped  int
}

// Closed reports whether the session no longer owns its device.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// BeginCapture claims the capture device and starts recording. onTick is
// called once per second with the elapsed time as MM:SS.
func (i *Ingestor) BeginCapture(ctx context.Context, onTick func(elapsed string)) (*Session, error) {
	if i.mic == nil {
		return nil, device.ErrUnavailable
	}
	stream, err := i.mic.Open(i.capture.SampleRate, framesPerBuffer)
	if err != nil {
		i.logger.Warnf("capture device refused: %v", err)
		return nil, err
	}

	s := &Session{
		ID:        uuid.New(),
		StartedAt: i.now(),
		stream:    stream,
		ring:      capture.NewRingForDuration(i.capture.MaxSeconds, i.capture.SampleRate, framesPerBuffer),
		stopTick:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}

	rate := i.capture.SampleRate
	err = stream.Start(func(samples []int16) {
		dropped, err := s.ring.Enqueue(capture.NewFrame(samples, rate, 1, time.Now()))
		if err != nil {
			i.logger.Errorf("capture %s: dropping block: %v", s.ID, err)
			return
		}
		if dropped > 0 {
			s.mu.Lock()
			first := s.dropped == 0
			s.dropped += dropped
			s.mu.Unlock()
			if first {
				i.logger.Warnf("capture %s: over %ds, discarding oldest audio", s.ID, i.capture.MaxSeconds)
			}
		}
	})
	if err != nil {
		stream.Close()
		i.logger.Warnf("capture device refused: %v", err)
		return nil, err
	}

	go i.runTicker(s, onTick)
	i.logger.Infof("capture %s started on %s", s.ID, i.mic.Name())
	return s, nil
}

func (i *Ingestor) runTicker(s *Session, onTick func(string)) {
	defer close(s.tickDone)
	if onTick == nil {
		<-s.stopTick
		return
	}
	ticker := time.NewTicker(i.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopTick:
			return
		case <-ticker.C:
			onTick(FormatElapsed(i.now().Sub(s.StartedAt)))
		}
	}
}

// release stops the ticker and closes the device. It reports false if the
// session was already released.
func (i *Ingestor) release(s *Session) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopTick)
	<-s.tickDone
	if err := s.stream.Close(); err != nil {
		i.logger.Warnf("capture %s: closing device: %v", s.ID, err)
	}
	return true
}

// EndCapture stops recording, releases the device and returns the capture
// as a WAV unit.
func (i *Ingestor) EndCapture(ctx context.Context, s *Session) (*AudioUnit, error) {
	if s == nil || !i.release(s) {
		return nil, ErrSessionClosed
	}

	frames := s.ring.Drain()
	var samples []int
	for _, f := range frames {
		samples = append(samples, f.Samples()...)
	}
	if len(samples) == 0 {
		return nil, ErrNothingCaptured
	}

	content, err := media.EncodeWAV(&media.PCM{Samples: samples, SampleRate: i.capture.SampleRate})
	if err != nil {
		return nil, err
	}
	duration, err := i.codec.Duration(ctx, content, "wav")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	unit := &AudioUnit{
		Content:         content,
		MimeType:        "audio/wav",
		DurationSeconds: duration,
		Name:            RecordingName(s.StartedAt),
		SizeWarning:     int64(len(content)) > i.maxBytes(),
	}
	unit.EphemeralURL = i.ephemeral.Register(s.ID, content, unit.MimeType)
	s.mu.Lock()
	s.url = unit.EphemeralURL
	s.mu.Unlock()

	i.logger.Infof("capture %s finished: %.1fs, %d bytes", s.ID, duration, len(content))
	return unit, nil
}

// Discard releases the session's device and revokes its ephemeral URL.
// Calling it more than once is safe.
func (i *Ingestor) Discard(s *Session) {
	if s == nil {
		return
	}
	if i.release(s) {
		s.ring.Reset()
		i.logger.Infof("capture %s discarded", s.ID)
	}
	s.mu.Lock()
	url := s.url
	s.url = ""
	s.mu.Unlock()
	i.ephemeral.Revoke(url)
}

// Release revokes the ephemeral URL of a unit once it is no longer needed.
func (i *Ingestor) Release(u *AudioUnit) {
	if u != nil {
		i.ephemeral.Revoke(u.EphemeralURL)
	}
}

// IngestFile normalizes an uploaded file into an AudioUnit.
func (i *Ingestor) IngestFile(ctx context.Context, name, declaredMime string, content []byte) (*AudioUnit, error) {
	ext := Ext(name)
	if !i.supported(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if len(content) == 0 {
		return nil, ErrEmptyFile
	}

	unit := &AudioUnit{
		Content:  content,
		MimeType: MimeFor(name, declaredMime),
		Name:     name,
	}

	duration, err := i.codec.Duration(ctx, content, ext)
	switch {
	case err == nil:
		unit.DurationSeconds = duration
	case errors.Is(err, media.ErrToolMissing):
		i.logger.Warnf("cannot probe duration of %q: %v", name, err)
	default:
		i.logger.Errorf("error processing audio file %q: %v", name, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	if int64(len(content)) > i.maxBytes() {
		unit.SizeWarning = true
		i.logger.Warnf("file %q is %d bytes, above the %d MB limit; processing may be slow",
			name, len(content), i.files.MaxSizeMB)
	}

	unit.EphemeralURL = i.ephemeral.Register(uuid.New(), content, unit.MimeType)
	return unit, nil
}

func (i *Ingestor) supported(ext string) bool {
	for _, f := range i.files.AudioFormats {
		if f == ext {
			return true
		}
	}
	for _, f := range i.files.VideoFormats {
		if f == ext {
			return true
		}
	}
	return false
}

func (i *Ingestor) maxBytes() int64 {
	return int64(i.files.MaxSizeMB) * 1024 * 1024
}
