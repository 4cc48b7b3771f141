package stt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFormat means the recognizer rejected the shape of the audio it was given.
	ErrFormat = errors.New("audio format not accepted by model")
	// ErrCapability means a required runtime piece is missing; retrying will not help.
	ErrCapability = errors.New("missing platform capability")
	// ErrModelNotLoaded is returned when no recognizer is ready.
	ErrModelNotLoaded = errors.New("no model loaded")
)

// AudioInput carries one piece of audio in one of two representations:
// a decoded 16 kHz mono WAV window, or a path to the original file.
type AudioInput struct {
	ID       uuid.UUID
	WAV      []byte
	Path     string
	MimeType string
	// Language is an ISO code, empty for no hint.
	Language string
	Offset   time.Duration
	Duration time.Duration
}

type Output struct {
	Content       string
	Language      string
	ID            uuid.UUID // from input
	GeneratedAt   time.Time
	AudioDuration time.Duration
}

// Recognizer is a loaded speech-to-text model.
type Recognizer interface {
	Recognize(ctx context.Context, in *AudioInput) (Output, error)
	// Name is the logical catalog name the recognizer was loaded as.
	Name() string
	Close() error
}
