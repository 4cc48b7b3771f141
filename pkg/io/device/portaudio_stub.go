//go:build !portaudio
// +build !portaudio

package device

import "fmt"

type noDevice struct{}

// Default returns a device that always refuses to open. Build with
// -tags=portaudio for microphone capture.
func Default() Device {
	return noDevice{}
}

func (noDevice) Name() string {
	return "none"
}

func (noDevice) Available() error {
	return fmt.Errorf("%w: built without portaudio", ErrUnavailable)
}

func (noDevice) Open(int, int) (Stream, error) {
	return nil, fmt.Errorf("%w: built without portaudio", ErrUnavailable)
}
