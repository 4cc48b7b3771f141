package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
)

// TranscriptionResponse represents the response from the whisper-asr service
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
}

// TranscriptionSegment represents a timed segment of transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ID    int     `json:"id"`
}

// Client talks to a whisper-asr-webservice instance.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     *Logger.Logger
}

// NewClient returns a recognizer bound to a running service. name is the
// catalog model the service was started with.
func NewClient(name, baseURL string, timeout time.Duration, logger *Logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("whisper-http"),
	}
}

func (c *Client) Name() string { return c.name }

func (c *Client) Close() error { return nil }

// IsAlive probes the service docs page.
func (c *Client) IsAlive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/docs", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("whisper service returned status %d", resp.StatusCode)
	}
	return nil
}

// Recognize implements stt.Recognizer
func (c *Client) Recognize(ctx context.Context, in *stt.AudioInput) (stt.Output, error) {
	data, filename, err := payload(in)
	if err != nil {
		return stt.Output{}, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return stt.Output{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return stt.Output{}, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return stt.Output{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	q := url.Values{}
	q.Set("encode", "true")
	q.Set("task", "transcribe")
	q.Set("output", "json")
	if in.Language != "" {
		q.Set("language", in.Language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/asr?"+q.Encode(), &body)
	if err != nil {
		return stt.Output{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stt.Output{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Output{}, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return stt.Output{}, fmt.Errorf("%w: status %d: %s", stt.ErrFormat, resp.StatusCode, snippet(responseBody))
	case resp.StatusCode == http.StatusNotImplemented:
		return stt.Output{}, fmt.Errorf("%w: service lacks transcription support: %s", stt.ErrCapability, snippet(responseBody))
	case resp.StatusCode != http.StatusOK:
		c.logger.Errorf("whisper service error (status %d): %s", resp.StatusCode, snippet(responseBody))
		return stt.Output{}, fmt.Errorf("whisper service returned status %d: %s", resp.StatusCode, snippet(responseBody))
	}

	if len(bytes.TrimSpace(responseBody)) == 0 {
		return stt.Output{}, fmt.Errorf("whisper service returned empty response")
	}

	out := stt.Output{ID: in.ID, GeneratedAt: time.Now(), AudioDuration: in.Duration, Language: in.Language}
	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		// plain text output
		c.logger.Debugf("treating response as plain text (%d bytes)", len(responseBody))
		out.Content = strings.TrimSpace(string(responseBody))
		return out, nil
	}
	out.Content = strings.TrimSpace(transcription.Text)
	if transcription.Language != "" {
		out.Language = transcription.Language
	}
	return out, nil
}

func payload(in *stt.AudioInput) ([]byte, string, error) {
	if len(in.WAV) > 0 {
		return in.WAV, "audio.wav", nil
	}
	if in.Path == "" {
		return nil, "", fmt.Errorf("%w: empty audio input", stt.ErrFormat)
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}
	return data, filepath.Base(in.Path), nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
