package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xpanvictor/xscribe/pkg/Logger"
)

var (
	ErrInvalidAudio = errors.New("invalid audio")
	ErrToolMissing  = errors.New("media tool not available")
)

// Codec decodes clips to 16 kHz mono PCM. WAV is read in process, anything
// else goes through ffmpeg.
type Codec struct {
	FFmpeg  string
	FFprobe string
	TempDir string
	logger  *Logger.Logger
}

func NewCodec(ffmpeg, ffprobe, tempDir string, logger *Logger.Logger) *Codec {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Codec{FFmpeg: ffmpeg, FFprobe: ffprobe, TempDir: tempDir, logger: logger.Named("media")}
}

// IsWAV reports whether content carries a RIFF/WAVE header.
func IsWAV(content []byte) bool {
	return len(content) >= 12 && string(content[0:4]) == "RIFF" && string(content[8:12]) == "WAVE"
}

// Duration probes the clip length in seconds.
func (c *Codec) Duration(ctx context.Context, content []byte, ext string) (float64, error) {
	if IsWAV(content) {
		d := wav.NewDecoder(bytes.NewReader(content))
		if !d.IsValidFile() {
			return 0, fmt.Errorf("%w: malformed wav header", ErrInvalidAudio)
		}
		dur, err := d.Duration()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		return dur.Seconds(), nil
	}

	path, cleanup, err := c.WriteTemp(content, ext)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	if _, err := exec.LookPath(c.FFprobe); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrToolMissing, c.FFprobe)
	}
	// ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 input
	out, err := exec.CommandContext(ctx, c.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", ErrInvalidAudio, err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe duration %q", ErrInvalidAudio, strings.TrimSpace(string(out)))
	}
	return secs, nil
}

// Decode returns the clip as 16 kHz mono PCM.
func (c *Codec) Decode(ctx context.Context, content []byte, ext string) (*PCM, error) {
	if IsWAV(content) {
		pcm, err := DecodeWAV(content)
		if err != nil {
			return nil, err
		}
		if pcm.SampleRate == TargetSampleRate {
			return pcm, nil
		}
		c.logger.Debugf("wav at %d Hz, resampling through ffmpeg", pcm.SampleRate)
	}

	wavBytes, err := c.convert(ctx, content, ext)
	if err != nil {
		return nil, err
	}
	return DecodeWAV(wavBytes)
}

// convert runs ffmpeg -y -i input -ac 1 -ar 16000 -f wav output.
func (c *Codec) convert(ctx context.Context, content []byte, ext string) ([]byte, error) {
	if _, err := exec.LookPath(c.FFmpeg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolMissing, c.FFmpeg)
	}
	in, cleanupIn, err := c.WriteTemp(content, ext)
	if err != nil {
		return nil, err
	}
	defer cleanupIn()

	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	out := filepath.Join(filepath.Dir(in), base+"_audio_16k.wav")
	defer os.Remove(out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.FFmpeg,
		"-y", "-i", in,
		"-ac", "1", "-ar", strconv.Itoa(TargetSampleRate),
		"-f", "wav",
		out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		c.logger.Debugf("ffmpeg stderr: %s", stderr.String())
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrInvalidAudio, err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read ffmpeg output: %w", err)
	}
	return data, nil
}

// WriteTemp stores content in a temp file carrying ext so external tools
// can sniff the container.
func (c *Codec) WriteTemp(content []byte, ext string) (string, func(), error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	f, err := os.CreateTemp(c.TempDir, "xscribe_*."+ext)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	cleanup := func() { os.Remove(name) }
	if _, err := f.Write(content); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, cleanup, nil
}

// DecodeWAV reads a PCM WAV and folds it to mono 16-bit samples.
func DecodeWAV(content []byte) (*PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(content))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: malformed wav header", ErrInvalidAudio)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	chans := int(d.NumChans)
	if chans < 1 {
		chans = 1
	}
	shift := int(d.BitDepth) - 16

	samples := make([]int, len(buf.Data)/chans)
	for i := range samples {
		sum := 0
		for ch := 0; ch < chans; ch++ {
			sum += buf.Data[i*chans+ch]
		}
		v := sum / chans
		switch {
		case d.BitDepth == 8:
			v = (v - 128) << 8
		case shift > 0:
			v >>= shift
		}
		samples[i] = v
	}
	return &PCM{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// EncodeWAV writes mono 16-bit PCM as a WAV file.
func EncodeWAV(pcm *PCM) ([]byte, error) {
	out := &memFile{}
	enc := wav.NewEncoder(out, pcm.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: pcm.SampleRate},
		Data:           pcm.Samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return out.Bytes(), nil
}
