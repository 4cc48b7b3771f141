package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

var (
	// ErrPermission means the OS or user refused access to the input device.
	ErrPermission  = errors.New("capture device permission denied")
	ErrUnavailable = errors.New("capture device unavailable")
)

// Device is a source of mono 16-bit audio.
type Device interface {
	Name() string
	// Open claims the device. The stream owns it until Close.
	Open(sampleRate, framesPerBuffer int) (Stream, error)
}

// Stream is an open device handle.
type Stream interface {
	// Start delivers sample blocks to onSamples from the device's own goroutine.
	Start(onSamples func(samples []int16)) error
	// Close stops delivery and releases the device. Safe to call twice.
	Close() error
}

// Well-known capability names.
const (
	CapMicrophone = "microphone"
	CapFFmpeg     = "ffmpeg"
	CapWhisperCLI = "whisper-cli"
)

// Capability is the typed result of a platform check.
type Capability struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Probe answers whether a platform capability is present.
type Probe interface {
	Check(ctx context.Context, name string) Capability
}

// SystemProbe checks executables on PATH and the capture device.
type SystemProbe struct {
	Mic      Device
	Programs map[string]string
}

func NewSystemProbe(mic Device, ffmpeg, whisperCLI string) *SystemProbe {
	return &SystemProbe{
		Mic: mic,
		Programs: map[string]string{
			CapFFmpeg:     ffmpeg,
			CapWhisperCLI: whisperCLI,
		},
	}
}

func (p *SystemProbe) Check(ctx context.Context, name string) Capability {
	if name == CapMicrophone {
		return p.checkMic()
	}
	prog, ok := p.Programs[name]
	if !ok {
		return Capability{Name: name, Detail: "unknown capability"}
	}
	path, err := exec.LookPath(prog)
	if err != nil {
		return Capability{Name: name, Detail: fmt.Sprintf("%s not found on PATH", prog)}
	}
	return Capability{Name: name, Available: true, Detail: path}
}

// All runs every known check.
func (p *SystemProbe) All(ctx context.Context) []Capability {
	return []Capability{
		p.Check(ctx, CapMicrophone),
		p.Check(ctx, CapFFmpeg),
		p.Check(ctx, CapWhisperCLI),
	}
}

func (p *SystemProbe) checkMic() Capability {
	if p.Mic == nil {
		return Capability{Name: CapMicrophone, Detail: "no capture device configured"}
	}
	if a, ok := p.Mic.(interface{ Available() error }); ok {
		if err := a.Available(); err != nil {
			return Capability{Name: CapMicrophone, Detail: err.Error()}
		}
	}
	return Capability{Name: CapMicrophone, Available: true, Detail: p.Mic.Name()}
}
