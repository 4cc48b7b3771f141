package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AudioUnit is a normalized, duration-annotated clip ready for storage.
type AudioUnit struct {
	Content         []byte  `json:"-"`
	MimeType        string  `json:"mimeType"`
	DurationSeconds float64 `json:"durationSeconds"`
	Name            string  `json:"name"`
	EphemeralURL    string  `json:"ephemeralUrl"`
	// SizeWarning is set when the payload is above the configured limit.
	SizeWarning bool `json:"sizeWarning"`
}

// Ext is the lowercase extension of the unit's name without the dot.
func (u *AudioUnit) Ext() string {
	return Ext(u.Name)
}

func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

var mimeByExt = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"webm": "audio/webm",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
}

// MimeFor prefers the declared type and falls back to the extension table.
func MimeFor(name, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if m, ok := mimeByExt[Ext(name)]; ok {
		return m
	}
	return "application/octet-stream"
}

// RecordingName is recording_<RFC3339 with ':' and '.' replaced by '-'>.wav.
func RecordingName(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "recording_" + ts + ".wav"
}

// FormatElapsed renders a duration as MM:SS.
func FormatElapsed(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

const ephemeralScheme = "ephemeral://"

type ephemeralEntry struct {
	content []byte
	mime    string
}

// Ephemeral is a process-local table of revocable handles to unsaved audio.
type Ephemeral struct {
	mu      sync.RWMutex
	entries map[string]ephemeralEntry
}

func NewEphemeral() *Ephemeral {
	return &Ephemeral{entries: make(map[string]ephemeralEntry)}
}

func (e *Ephemeral) Register(id uuid.UUID, content []byte, mime string) string {
	url := ephemeralScheme + id.String()
	e.mu.Lock()
	e.entries[url] = ephemeralEntry{content: content, mime: mime}
	e.mu.Unlock()
	return url
}

func (e *Ephemeral) Resolve(url string) ([]byte, string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[url]
	return entry.content, entry.mime, ok
}

func (e *Ephemeral) Revoke(url string) {
	if url == "" {
		return
	}
	e.mu.Lock()
	delete(e.entries, url)
	e.mu.Unlock()
}

func (e *Ephemeral) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}
