package whispercli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
)

// Recognizer runs a whisper.cpp executable against a downloaded ggml model.
type Recognizer struct {
	name       string
	executable string
	modelPath  string
	threads    int
	tempDir    string
	logger     *Logger.Logger
}

func New(name, executable, modelPath, tempDir string, logger *Logger.Logger) *Recognizer {
	return &Recognizer{
		name:       name,
		executable: executable,
		modelPath:  modelPath,
		threads:    4,
		tempDir:    tempDir,
		logger:     logger.Named("whisper-cli"),
	}
}

func (r *Recognizer) Name() string { return r.name }

func (r *Recognizer) Close() error { return nil }

// Check verifies the executable and model are present.
func (r *Recognizer) Check() error {
	if _, err := exec.LookPath(r.executable); err != nil {
		return fmt.Errorf("%w: %s not found on PATH", stt.ErrCapability, r.executable)
	}
	if _, err := os.Stat(r.modelPath); err != nil {
		return fmt.Errorf("model file %s: %w", r.modelPath, err)
	}
	return nil
}

func (r *Recognizer) args(input, language string) []string {
	if language == "" {
		language = "auto"
	}
	return []string{
		"-m", r.modelPath,
		"-f", input,
		"-nt", // no timestamps
		"-np", // no progress prints
		"-t", fmt.Sprint(r.threads),
		"-l", language,
	}
}

// Recognize implements stt.Recognizer
func (r *Recognizer) Recognize(ctx context.Context, in *stt.AudioInput) (stt.Output, error) {
	input := in.Path
	if len(in.WAV) > 0 {
		f, err := os.CreateTemp(r.tempDir, "whisper_window_*.wav")
		if err != nil {
			return stt.Output{}, fmt.Errorf("failed to create temp file: %w", err)
		}
		input = f.Name()
		defer os.Remove(input)
		_, werr := f.Write(in.WAV)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			return stt.Output{}, fmt.Errorf("failed to write temp wav: %v %v", werr, cerr)
		}
	}
	if input == "" {
		return stt.Output{}, fmt.Errorf("%w: empty audio input", stt.ErrFormat)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.executable, r.args(input, in.Language)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return stt.Output{}, r.classify(err, stderr.String())
	}
	r.logger.Debugf("window %s done in %s", in.Offset, time.Since(start))

	return stt.Output{
		Content:       parseOutput(stdout.String()),
		Language:      in.Language,
		ID:            in.ID,
		GeneratedAt:   time.Now(),
		AudioDuration: in.Duration,
	}, nil
}

func (r *Recognizer) classify(err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s not found", stt.ErrCapability, r.executable)
	}
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "failed to read"),
		strings.Contains(lower, "failed to open"),
		strings.Contains(lower, "unsupported"),
		strings.Contains(lower, "invalid wav"):
		return fmt.Errorf("%w: %s", stt.ErrFormat, lastLine(stderr))
	case strings.Contains(lower, "illegal instruction"),
		strings.Contains(lower, "not supported by this cpu"):
		return fmt.Errorf("%w: %s", stt.ErrCapability, lastLine(stderr))
	}
	return fmt.Errorf("whisper.cpp failed: %v: %s", err, lastLine(stderr))
}

// parseOutput keeps the transcript lines and drops log lines.
func parseOutput(out string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "whisper_") || strings.HasPrefix(line, "system_info") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}
	return b.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
