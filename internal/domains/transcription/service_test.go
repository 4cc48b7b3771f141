package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/ingest"
	"github.com/xpanvictor/xscribe/pkg/io/media"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
)

type scriptedRecognizer struct {
	calls   []stt.AudioInput
	respond func(in *stt.AudioInput, call int) (string, error)
}

func (r *scriptedRecognizer) Recognize(_ context.Context, in *stt.AudioInput) (stt.Output, error) {
	r.calls = append(r.calls, *in)
	text, err := r.respond(in, len(r.calls)-1)
	if err != nil {
		return stt.Output{}, err
	}
	return stt.Output{Content: text, ID: in.ID}, nil
}

func (r *scriptedRecognizer) Name() string { return "whisper-tiny" }
func (r *scriptedRecognizer) Close() error { return nil }

type fixedModels struct {
	rec      stt.Recognizer
	released *int
}

func (m fixedModels) Acquire() (stt.Recognizer, func(), error) {
	if m.rec == nil {
		return nil, nil, stt.ErrModelNotLoaded
	}
	return m.rec, func() {
		if m.released != nil {
			*m.released++
		}
	}, nil
}

type staticProbe map[string]bool

func (p staticProbe) Check(_ context.Context, name string) device.Capability {
	return device.Capability{Name: name, Available: p[name], Detail: name + " probe"}
}

func wavUnit(t *testing.T, seconds float64) *ingest.AudioUnit {
	t.Helper()
	samples := make([]int, int(seconds*media.TargetSampleRate))
	for i := range samples {
		samples[i] = (i % 200) - 100
	}
	content, err := media.EncodeWAV(&media.PCM{Samples: samples, SampleRate: media.TargetSampleRate})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return &ingest.AudioUnit{Content: content, MimeType: "audio/wav", Name: "clip.wav", DurationSeconds: seconds}
}

func newTestService(t *testing.T, rec stt.Recognizer, probe device.Probe) Service {
	t.Helper()
	codec := media.NewCodec("xscribe-no-ffmpeg", "xscribe-no-ffprobe", t.TempDir(), Logger.Nop())
	return NewService(fixedModels{rec: rec}, codec, probe, Logger.Nop())
}

func TestTranscribeWithoutModel(t *testing.T) {
	svc := newTestService(t, nil, nil)
	called := false
	_, err := svc.Transcribe(context.Background(), wavUnit(t, 1), "sv", func(float64) { called = true })
	if !errors.Is(err, stt.ErrModelNotLoaded) {
		t.Fatalf("err = %v, want ErrModelNotLoaded", err)
	}
	if called {
		t.Error("progress reported without a model")
	}
}

func TestTranscribeWindows(t *testing.T) {
	chunks := []string{
		"hello there this is the first part and it",
		"part and it continues into the second window [BLANK_AUDIO]",
		"second window and then it ends.",
	}
	rec := &scriptedRecognizer{respond: func(_ *stt.AudioInput, call int) (string, error) {
		return chunks[call], nil
	}}
	svc := newTestService(t, rec, nil)

	var progress []float64
	out, err := svc.Transcribe(context.Background(), wavUnit(t, 70), "auto", func(f float64) { progress = append(progress, f) })
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	want := "hello there this is the first part and it continues into the second window and then it ends."
	if out.Text != want {
		t.Errorf("text = %q\nwant   %q", out.Text, want)
	}
	if out.Model != "whisper-tiny" {
		t.Errorf("model = %q, want the recognizer's name", out.Model)
	}

	if len(rec.calls) != 3 {
		t.Fatalf("recognizer called %d times, want 3", len(rec.calls))
	}
	offsets := []time.Duration{0, 25 * time.Second, 50 * time.Second}
	for i, c := range rec.calls {
		if c.Offset != offsets[i] {
			t.Errorf("window %d offset = %v, want %v", i, c.Offset, offsets[i])
		}
		if c.Language != "" {
			t.Errorf("window %d language = %q, want no hint", i, c.Language)
		}
		if len(c.WAV) == 0 || c.Path != "" {
			t.Errorf("window %d should carry decoded wav", i)
		}
	}
	if rec.calls[2].Duration != 20*time.Second {
		t.Errorf("last window duration = %v", rec.calls[2].Duration)
	}

	if progress[0] != 0 || progress[len(progress)-1] != 1 {
		t.Errorf("progress = %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i]-progress[i-1] < 0.01 {
			t.Errorf("progress step %v -> %v below 1%%", progress[i-1], progress[i])
		}
	}
}

func TestTranscribePassesLanguage(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(*stt.AudioInput, int) (string, error) { return "hej", nil }}
	svc := newTestService(t, rec, nil)
	if _, err := svc.Transcribe(context.Background(), wavUnit(t, 2), "sv", nil); err != nil {
		t.Fatal(err)
	}
	if rec.calls[0].Language != "sv" {
		t.Errorf("language = %q, want sv", rec.calls[0].Language)
	}
}

func TestTranscribeFormatRetry(t *testing.T) {
	t.Run("retry succeeds", func(t *testing.T) {
		unit := wavUnit(t, 3)
		rec := &scriptedRecognizer{respond: func(in *stt.AudioInput, _ int) (string, error) {
			if in.Path == "" {
				return "", fmt.Errorf("%w: bad header", stt.ErrFormat)
			}
			data, err := os.ReadFile(in.Path)
			if err != nil || len(data) != len(unit.Content) {
				return "", errors.New("path does not hold the original content")
			}
			return "from the file", nil
		}}
		svc := newTestService(t, rec, nil)
		out, err := svc.Transcribe(context.Background(), unit, "en", nil)
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if out.Text != "from the file" {
			t.Errorf("text = %q", out.Text)
		}
		if len(rec.calls) != 2 {
			t.Errorf("calls = %d, want 2", len(rec.calls))
		}
		if _, err := os.Stat(rec.calls[1].Path); !os.IsNotExist(err) {
			t.Error("temp file not removed after retry")
		}
	})

	t.Run("retry fails", func(t *testing.T) {
		rec := &scriptedRecognizer{respond: func(*stt.AudioInput, int) (string, error) {
			return "", stt.ErrFormat
		}}
		svc := newTestService(t, rec, nil)
		_, err := svc.Transcribe(context.Background(), wavUnit(t, 3), "en", nil)
		if !errors.Is(err, stt.ErrFormat) {
			t.Fatalf("err = %v, want ErrFormat", err)
		}
		if len(rec.calls) != 2 {
			t.Errorf("calls = %d, want exactly one retry", len(rec.calls))
		}
	})
}

func TestTranscribeCapabilityIsNotRetried(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(*stt.AudioInput, int) (string, error) {
		return "", fmt.Errorf("%w: illegal instruction", stt.ErrCapability)
	}}
	svc := newTestService(t, rec, nil)
	_, err := svc.Transcribe(context.Background(), wavUnit(t, 3), "en", nil)
	if !errors.Is(err, stt.ErrCapability) {
		t.Fatalf("err = %v, want ErrCapability", err)
	}
	if !strings.Contains(err.Error(), "models.backend") {
		t.Errorf("message is not actionable: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(rec.calls))
	}
}

func TestTranscribeGenericFailure(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(*stt.AudioInput, int) (string, error) {
		return "", errors.New("connection reset")
	}}
	svc := newTestService(t, rec, nil)
	_, err := svc.Transcribe(context.Background(), wavUnit(t, 3), "en", nil)
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("cause missing from %v", err)
	}
}

func TestTranscribeUndecodableUsesFile(t *testing.T) {
	unit := &ingest.AudioUnit{Content: []byte("ID3 not really mp3"), MimeType: "audio/mpeg", Name: "talk.mp3"}
	rec := &scriptedRecognizer{respond: func(in *stt.AudioInput, _ int) (string, error) {
		if !strings.HasSuffix(in.Path, ".mp3") {
			return "", stt.ErrFormat
		}
		return "mp3 text", nil
	}}

	for name, probe := range map[string]device.Probe{
		"no probe":       nil,
		"ffmpeg missing": staticProbe{device.CapFFmpeg: false},
	} {
		t.Run(name, func(t *testing.T) {
			rec.calls = nil
			svc := newTestService(t, rec, probe)
			out, err := svc.Transcribe(context.Background(), unit, "auto", nil)
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if out.Text != "mp3 text" || len(rec.calls) != 1 {
				t.Errorf("text = %q after %d calls", out.Text, len(rec.calls))
			}
		})
	}
}

func TestTranscribeReleasesModel(t *testing.T) {
	var released int
	codec := media.NewCodec("xscribe-no-ffmpeg", "xscribe-no-ffprobe", t.TempDir(), Logger.Nop())

	ok := &scriptedRecognizer{respond: func(*stt.AudioInput, int) (string, error) { return "fine", nil }}
	svc := NewService(fixedModels{rec: ok, released: &released}, codec, nil, Logger.Nop())
	if _, err := svc.Transcribe(context.Background(), wavUnit(t, 2), "sv", nil); err != nil {
		t.Fatal(err)
	}

	bad := &scriptedRecognizer{respond: func(*stt.AudioInput, int) (string, error) { return "", errors.New("boom") }}
	svc = NewService(fixedModels{rec: bad, released: &released}, codec, nil, Logger.Nop())
	if _, err := svc.Transcribe(context.Background(), wavUnit(t, 2), "sv", nil); err == nil {
		t.Fatal("expected failure")
	}

	if released != 2 {
		t.Errorf("released %d times, want 2", released)
	}
}

func TestMergeChunks(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"single", []string{" one  two "}, "one two"},
		{"overlap ignores case and punctuation", []string{"we went to the Store,", "the store and bought milk"}, "we went to the Store, and bought milk"},
		{"single shared word kept", []string{"yes", "yes we can"}, "yes yes we can"},
		{"markers dropped", []string{"[BLANK_AUDIO]", "(music playing) hello ."}, "hello."},
		{"no overlap", []string{"alpha beta", "gamma delta"}, "alpha beta gamma delta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeChunks(tt.parts); got != tt.want {
				t.Errorf("mergeChunks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReporterRateLimit(t *testing.T) {
	var got []float64
	report := newReporter(func(f float64) { got = append(got, f) })
	for _, f := range []float64{0, 0.004, 0.009, 0.01, 0.015, 0.5, 0.2, 1.3} {
		report(f)
	}
	want := []float64{0, 0.01, 0.5, 1}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("reported %v, want %v", got, want)
	}
}
