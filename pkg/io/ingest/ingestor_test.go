package ingest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/device"
	"github.com/xpanvictor/xscribe/pkg/io/media"
)

type fakeStream struct {
	mu     sync.Mutex
	blocks [][]int16
	closes int
}

func (s *fakeStream) Start(onSamples func([]int16)) error {
	for _, b := range s.blocks {
		onSamples(b)
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Open(int, int) (device.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func testFiles() config.FilesConfig {
	return config.FilesConfig{
		MaxSizeMB:    1,
		AudioFormats: []string{"mp3", "wav", "ogg", "flac", "m4a", "webm"},
		VideoFormats: []string{"mp4", "mov", "webm"},
	}
}

func newTestIngestor(t *testing.T, mic device.Device) *Ingestor {
	t.Helper()
	codec := media.NewCodec("xscribe-no-such-ffmpeg", "xscribe-no-such-ffprobe", t.TempDir(), Logger.Nop())
	ing := New(mic, codec, testFiles(), config.CaptureConfig{SampleRate: 16000, MaxSeconds: 60}, Logger.Nop())
	ing.tick = 5 * time.Millisecond
	return ing
}

func blocks(n, size int) [][]int16 {
	out := make([][]int16, n)
	for i := range out {
		b := make([]int16, size)
		for j := range b {
			b[j] = int16(1000 * math.Sin(float64(i*size+j)/10))
		}
		out[i] = b
	}
	return out
}

func TestCaptureLifecycle(t *testing.T) {
	stream := &fakeStream{blocks: blocks(16, 1000)}
	ing := newTestIngestor(t, &fakeDevice{stream: stream})

	ticks := make(chan string, 16)
	s, err := ing.BeginCapture(context.Background(), func(elapsed string) {
		select {
		case ticks <- elapsed:
		default:
		}
	})
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}

	select {
	case got := <-ticks:
		if got != "00:00" {
			t.Errorf("tick = %q, want 00:00", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}

	unit, err := ing.EndCapture(context.Background(), s)
	if err != nil {
		t.Fatalf("EndCapture: %v", err)
	}
	if unit.MimeType != "audio/wav" || !media.IsWAV(unit.Content) {
		t.Errorf("unexpected unit %q / %q", unit.MimeType, unit.Name)
	}
	if !strings.HasPrefix(unit.Name, "recording_") || !strings.HasSuffix(unit.Name, ".wav") {
		t.Errorf("name = %q", unit.Name)
	}
	if math.Abs(unit.DurationSeconds-1.0) > 0.01 {
		t.Errorf("duration = %.3f, want 1.0", unit.DurationSeconds)
	}
	if stream.closes != 1 {
		t.Errorf("device closed %d times, want 1", stream.closes)
	}
	if _, _, ok := ing.Ephemeral().Resolve(unit.EphemeralURL); !ok {
		t.Error("ephemeral url not registered")
	}

	if _, err := ing.EndCapture(context.Background(), s); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second EndCapture err = %v", err)
	}

	ing.Discard(s)
	ing.Discard(s)
	if stream.closes != 1 {
		t.Errorf("device closed %d times after discard, want 1", stream.closes)
	}
	if _, _, ok := ing.Ephemeral().Resolve(unit.EphemeralURL); ok {
		t.Error("ephemeral url still resolvable after discard")
	}
	if n := ing.Ephemeral().Len(); n != 0 {
		t.Errorf("%d ephemeral units left after discard", n)
	}
}

func TestDiscardBeforeEnd(t *testing.T) {
	stream := &fakeStream{blocks: blocks(2, 512)}
	ing := newTestIngestor(t, &fakeDevice{stream: stream})

	s, err := ing.BeginCapture(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ing.Discard(s)
	ing.Discard(s)

	if !s.Closed() {
		t.Error("session not closed")
	}
	if stream.closes != 1 {
		t.Errorf("device closed %d times, want 1", stream.closes)
	}
	if _, err := ing.EndCapture(context.Background(), s); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("EndCapture after discard err = %v", err)
	}
}

func TestCapturePermissionDenied(t *testing.T) {
	ing := newTestIngestor(t, &fakeDevice{err: device.ErrPermission})
	if _, err := ing.BeginCapture(context.Background(), nil); !errors.Is(err, device.ErrPermission) {
		t.Errorf("err = %v, want ErrPermission", err)
	}
}

func TestCaptureNothingRecorded(t *testing.T) {
	ing := newTestIngestor(t, &fakeDevice{stream: &fakeStream{}})
	s, err := ing.BeginCapture(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ing.EndCapture(context.Background(), s); !errors.Is(err, ErrNothingCaptured) {
		t.Errorf("err = %v, want ErrNothingCaptured", err)
	}
}

func TestIngestFile(t *testing.T) {
	ing := newTestIngestor(t, nil)
	ctx := context.Background()

	small, err := media.EncodeWAV(&media.PCM{Samples: make([]int, 8000), SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	large, err := media.EncodeWAV(&media.PCM{Samples: make([]int, 600000), SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("wav", func(t *testing.T) {
		unit, err := ing.IngestFile(ctx, "Interview.WAV", "", small)
		if err != nil {
			t.Fatalf("IngestFile: %v", err)
		}
		if unit.MimeType != "audio/wav" {
			t.Errorf("mime = %q", unit.MimeType)
		}
		if math.Abs(unit.DurationSeconds-0.5) > 0.01 {
			t.Errorf("duration = %.3f", unit.DurationSeconds)
		}
		if unit.SizeWarning {
			t.Error("unexpected size warning")
		}
		if unit.EphemeralURL == "" {
			t.Error("missing ephemeral url")
		}
		ing.Release(unit)
		if _, _, ok := ing.Ephemeral().Resolve(unit.EphemeralURL); ok {
			t.Error("url survived Release")
		}
	})

	t.Run("size warning", func(t *testing.T) {
		unit, err := ing.IngestFile(ctx, "long.wav", "audio/x-wav", large)
		if err != nil {
			t.Fatalf("IngestFile: %v", err)
		}
		if !unit.SizeWarning {
			t.Error("expected size warning")
		}
		if unit.MimeType != "audio/x-wav" {
			t.Errorf("declared mime not kept: %q", unit.MimeType)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := ing.IngestFile(ctx, "notes.txt", "text/plain", []byte("hi")); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := ing.IngestFile(ctx, "x.mp3", "", nil); !errors.Is(err, ErrEmptyFile) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("no ffprobe keeps zero duration", func(t *testing.T) {
		unit, err := ing.IngestFile(ctx, "clip.mp3", "", []byte("ID3 fake"))
		if err != nil {
			t.Fatalf("IngestFile: %v", err)
		}
		if unit.DurationSeconds != 0 || unit.MimeType != "audio/mpeg" {
			t.Errorf("unexpected unit %+v", unit)
		}
	})

	t.Run("corrupt wav", func(t *testing.T) {
		if _, err := ing.IngestFile(ctx, "bad.wav", "", []byte("RIFF\x04\x00\x00\x00WAVE")); !errors.Is(err, ErrInvalidFile) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestHelpers(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 250_000_000, time.UTC)
	if got := RecordingName(ts); got != "recording_2024-03-09T14-05-07-250Z.wav" {
		t.Errorf("RecordingName = %q", got)
	}
	cases := map[time.Duration]string{
		0:                                     "00:00",
		59 * time.Second:                      "00:59",
		61*time.Second + 900*time.Millisecond: "01:01",
		75 * time.Minute:                      "75:00",
	}
	for d, want := range cases {
		if got := FormatElapsed(d); got != want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", d, got, want)
		}
	}
}
