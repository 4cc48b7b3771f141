package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xpanvictor/xscribe/internal/config"
	"github.com/xpanvictor/xscribe/pkg/Logger"
	"github.com/xpanvictor/xscribe/pkg/io/stt"
	"github.com/xpanvictor/xscribe/pkg/io/stt/whisper"
	"github.com/xpanvictor/xscribe/pkg/io/stt/whispercli"
)

var ErrDownload = errors.New("model download failed")

// Downloader fetches ggml model files into a cache directory.
type Downloader struct {
	BaseURL  string
	CacheDir string
	Client   *http.Client
	logger   *Logger.Logger
}

func NewDownloader(baseURL, cacheDir string, logger *Logger.Logger) *Downloader {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Downloader{
		BaseURL:  baseURL,
		CacheDir: cacheDir,
		// no overall timeout, downloads are bounded by the caller's context
		Client: &http.Client{},
		logger: logger.Named("download"),
	}
}

// Path is where modelID lives once downloaded.
func (d *Downloader) Path(modelID string) string {
	return filepath.Join(d.CacheDir, modelID)
}

// Ensure returns the cached file for modelID, downloading it first if
// needed. A partial file never survives a failed or cancelled download.
func (d *Downloader) Ensure(ctx context.Context, modelID string, onProgress func(float64)) (string, error) {
	target := d.Path(modelID)
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		d.logger.Infof("using existing model file: %s", target)
		onProgress(1)
		return target, nil
	} else if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("error checking model file: %w", err)
	}

	if err := os.MkdirAll(d.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+modelID, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %s", ErrDownload, resp.Status)
	}

	if resp.ContentLength > 0 {
		d.logger.Infof("downloading %s (%d MB)", modelID, resp.ContentLength/(1024*1024))
	} else {
		d.logger.Infof("downloading %s, size unknown", modelID)
	}

	partial := target + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("failed to create model file: %w", err)
	}

	onProgress(0)
	pw := &progressWriter{total: resp.ContentLength, onProgress: onProgress, logger: d.logger}
	_, copyErr := io.Copy(out, io.TeeReader(resp.Body, pw))
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(partial)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", fmt.Errorf("%w: %v", ErrDownload, copyErr)
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to finalize model file: %w", err)
	}
	onProgress(1)
	d.logger.Infof("model downloaded: %s", target)
	return target, nil
}

// progressWriter reports byte progress as a fraction and logs every 10 MB.
type progressWriter struct {
	total        int64
	downloaded   int64
	lastReported int64
	onProgress   func(float64)
	logger       *Logger.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)
	if pw.total <= 0 {
		return n, nil
	}
	pw.onProgress(float64(pw.downloaded) / float64(pw.total))
	if pw.downloaded-pw.lastReported > 10*1024*1024 || pw.downloaded == pw.total {
		pw.logger.Debugf("downloaded %.1f MB of %.1f MB",
			float64(pw.downloaded)/1024/1024, float64(pw.total)/1024/1024)
		pw.lastReported = pw.downloaded
	}
	return n, nil
}

// CLILoader downloads the ggml file and binds it to the whisper.cpp executable.
type CLILoader struct {
	downloader *Downloader
	executable string
	tempDir    string
	logger     *Logger.Logger
}

func NewCLILoader(downloader *Downloader, executable, tempDir string, logger *Logger.Logger) *CLILoader {
	return &CLILoader{downloader: downloader, executable: executable, tempDir: tempDir, logger: logger}
}

func (l *CLILoader) Load(ctx context.Context, entry config.ModelEntry, onProgress func(float64)) (stt.Recognizer, error) {
	path, err := l.downloader.Ensure(ctx, entry.ModelID, onProgress)
	if err != nil {
		return nil, err
	}
	rec := whispercli.New(entry.Name, l.executable, path, l.tempDir, l.logger)
	if err := rec.Check(); err != nil {
		return nil, err
	}
	return rec, nil
}

// HTTPLoader binds to a running whisper-asr service. The service owns its
// model, so loading is a reachability check.
type HTTPLoader struct {
	baseURL string
	timeout time.Duration
	logger  *Logger.Logger
}

func NewHTTPLoader(baseURL string, timeout time.Duration, logger *Logger.Logger) *HTTPLoader {
	return &HTTPLoader{baseURL: baseURL, timeout: timeout, logger: logger}
}

func (l *HTTPLoader) Load(ctx context.Context, entry config.ModelEntry, onProgress func(float64)) (stt.Recognizer, error) {
	onProgress(0)
	client := whisper.NewClient(entry.Name, l.baseURL, l.timeout, l.logger)
	if err := client.IsAlive(ctx); err != nil {
		return nil, err
	}
	onProgress(1)
	return client, nil
}
