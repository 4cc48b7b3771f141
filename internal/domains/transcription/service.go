package transcription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
	"github.com/xpanvictor/xscribe/pkg/io/media"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
)

const (
	ChunkLength  = 30 * time.Second
	ChunkOverlap = 5 * time.Second
	// progress is only forwarded once it moves by at least this much
	progressStep = 0.01
)

// ErrTranscription wraps any recognizer failure that is neither a format
// mismatch nor a missing capability.
var ErrTranscription = errors.New("transcription failed")

// ModelSource pins the ready recognizer for the length of one transcription.
type ModelSource interface {
	Acquire() (rec stt.Recognizer, release func(), err error)
}

// Decoder turns clip bytes into 16 kHz mono PCM and can spill them to disk.
type Decoder interface {
	Decode(ctx context.Context, content []byte, ext string) (*media.PCM, error)
	WriteTemp(content []byte, ext string) (string, func(), error)
}

// Transcript is the merged text and the model that produced it.
type Transcript struct {
	Text  string
	Model string
}

type Service interface {
	// Transcribe runs the loaded model over unit. language "auto" means no hint.
	Transcribe(ctx context.Context, unit *ingest.AudioUnit, language string, onProgress func(float64)) (Transcript, error)
}

type transcriptionService struct {
	models  ModelSource
	decoder Decoder
	probe   device.Probe
	logger  *Logger.Logger

	window  time.Duration
	overlap time.Duration
}

// NewService builds the engine. probe may be nil, in which case non-WAV
// input is always handed to the decoder.
func NewService(models ModelSource, decoder Decoder, probe device.Probe, logger *Logger.Logger) Service {
	return &transcriptionService{
		models:  models,
		decoder: decoder,
		probe:   probe,
		logger:  logger.Named("transcribe"),
		window:  ChunkLength,
		overlap: ChunkOverlap,
	}
}

func (s *transcriptionService) Transcribe(ctx context.Context, unit *ingest.AudioUnit, language string, onProgress func(float64)) (Transcript, error) {
	rec, release, err := s.models.Acquire()
	if err != nil {
		return Transcript{}, err
	}
	defer release()

	text, err := s.transcribe(ctx, rec, unit, language, onProgress)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Text: text, Model: rec.Name()}, nil
}

func (s *transcriptionService) transcribe(ctx context.Context, rec stt.Recognizer, unit *ingest.AudioUnit, language string, onProgress func(float64)) (string, error) {
	if unit == nil || len(unit.Content) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrTranscription)
	}

	hint := languageHint(language)
	report := newReporter(onProgress)
	report(0)

	pcm, err := s.decode(ctx, unit)
	if err != nil {
		if errors.Is(err, media.ErrToolMissing) || errors.Is(err, media.ErrInvalidAudio) {
			s.logger.Warnf("could not decode %s (%v), handing the original file to %s", unit.Name, err, rec.Name())
			return s.fromFile(ctx, rec, unit, hint, report, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	text, err := s.windows(ctx, rec, pcm, unit.Name, hint, report)
	switch {
	case err == nil:
		report(1)
		return text, nil
	case errors.Is(err, stt.ErrFormat):
		s.logger.Warnf("%s rejected decoded audio (%v), retrying with the original file", rec.Name(), err)
		return s.fromFile(ctx, rec, unit, hint, report, err)
	case errors.Is(err, stt.ErrCapability):
		return "", capabilityError(err)
	default:
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
}

func (s *transcriptionService) decode(ctx context.Context, unit *ingest.AudioUnit) (*media.PCM, error) {
	if !media.IsWAV(unit.Content) && s.probe != nil {
		if c := s.probe.Check(ctx, device.CapFFmpeg); !c.Available {
			return nil, fmt.Errorf("%w: %s", media.ErrToolMissing, c.Detail)
		}
	}
	return s.decoder.Decode(ctx, unit.Content, unit.Ext())
}

// windows feeds fixed-size overlapping windows to the recognizer in order.
func (s *transcriptionService) windows(ctx context.Context, rec stt.Recognizer, pcm *media.PCM, name, hint string, report func(float64)) (string, error) {
	total := pcm.Seconds()
	if total == 0 {
		return "", nil
	}
	win := s.window.Seconds()
	step := (s.window - s.overlap).Seconds()
	count := int(math.Ceil(math.Max(total-s.overlap.Seconds(), 0) / step))
	if count < 1 {
		count = 1
	}

	parts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		from := float64(i) * step
		to := math.Min(from+win, total)

		wavBytes, err := media.EncodeWAV(pcm.Slice(from, to))
		if err != nil {
			return "", fmt.Errorf("encode window %d: %v", i, err)
		}
		out, err := rec.Recognize(ctx, &stt.AudioInput{
			ID:       uuid.New(),
			WAV:      wavBytes,
			MimeType: "audio/wav",
			Language: hint,
			Offset:   secs(from),
			Duration: secs(to - from),
		})
		if err != nil {
			return "", err
		}
		s.logger.Debugf("%s window %d/%d [%.1fs-%.1fs]: %d chars", name, i+1, count, from, to, len(out.Content))
		parts = append(parts, out.Content)
		report(to / total)
	}
	return mergeChunks(parts), nil
}

// fromFile is the single retry with the original content on disk.
func (s *transcriptionService) fromFile(ctx context.Context, rec stt.Recognizer, unit *ingest.AudioUnit, hint string, report func(float64), cause error) (string, error) {
	path, cleanup, err := s.decoder.WriteTemp(unit.Content, unit.Ext())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	defer cleanup()

	out, err := rec.Recognize(ctx, &stt.AudioInput{
		ID:       uuid.New(),
		Path:     path,
		MimeType: unit.MimeType,
		Language: hint,
		Duration: secs(unit.DurationSeconds),
	})
	if err != nil {
		if errors.Is(err, stt.ErrCapability) {
			return "", capabilityError(err)
		}
		s.logger.Errorf("retry with original file failed for %s: %v", unit.Name, err)
		return "", fmt.Errorf("%w: %v (after retry: %v)", stt.ErrFormat, cause, err)
	}
	report(1)
	return cleanChunk(out.Content), nil
}

func capabilityError(err error) error {
	msg := strings.TrimSpace(strings.TrimPrefix(err.Error(), stt.ErrCapability.Error()+":"))
	return fmt.Errorf("%w: %s; install a whisper.cpp build for this machine or set models.backend to http", stt.ErrCapability, msg)
}

func languageHint(code string) string {
	if strings.EqualFold(code, "auto") {
		return ""
	}
	return code
}

func secs(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// newReporter forwards fractions only when they advance by progressStep.
func newReporter(onProgress func(float64)) func(float64) {
	if onProgress == nil {
		return func(float64) {}
	}
	last := math.Inf(-1)
	return func(f float64) {
		f = math.Max(0, math.Min(1, f))
		if f-last < progressStep {
			return
		}
		last = f
		onProgress(f)
	}
}
