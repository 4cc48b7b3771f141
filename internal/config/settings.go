package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr            string `mapstructure:"addr"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

type DBConfig struct {
	// Driver is "mysql" or "sqlite".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// Path is the sqlite database file, ignored for mysql.
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (d DBConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	// Addr empty keeps the recent list in process.
	Addr string `mapstructure:"addr"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
	Key  string `mapstructure:"key"`
}

// ModelEntry is one entry of the transcription model catalog.
type ModelEntry struct {
	Name        string `mapstructure:"name" json:"name"`
	DisplayName string `mapstructure:"display_name" json:"displayName"`
	ModelID     string `mapstructure:"model_id" json:"modelId"`
	Size        string `mapstructure:"size" json:"size"`
	SizeMB      int    `mapstructure:"size_mb" json:"sizeMb"`
	Speed       string `mapstructure:"speed" json:"speed"`
	Accuracy    string `mapstructure:"accuracy" json:"accuracy"`
}

type ModelsConfig struct {
	Catalog []ModelEntry `mapstructure:"catalog"`
	Default string       `mapstructure:"default"`
	// Backend is "cli" (whisper.cpp executable + downloaded ggml file) or "http" (whisper-asr service).
	Backend    string `mapstructure:"backend"`
	CacheDir   string `mapstructure:"cache_dir"`
	BaseURL    string `mapstructure:"base_url"`
	Executable string `mapstructure:"executable"`
	ServiceURL string `mapstructure:"service_url"`
}

type SummarizationConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	// Lengths maps a summary tier ("1".."5") to the descriptor used in the remote prompt.
	Lengths map[string]string `mapstructure:"lengths"`
	// LanguageNames maps a language code to the name used in the remote prompt.
	LanguageNames map[string]string `mapstructure:"language_names"`
}

type FilesConfig struct {
	MaxSizeMB    int      `mapstructure:"max_size_mb"`
	AudioFormats []string `mapstructure:"audio_formats"`
	VideoFormats []string `mapstructure:"video_formats"`
}

type CaptureConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	MaxSeconds int `mapstructure:"max_seconds"`
}

// JobsConfig bounds how long finished jobs stay queryable.
type JobsConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

type MediaConfig struct {
	FFmpeg  string `mapstructure:"ffmpeg"`
	FFprobe string `mapstructure:"ffprobe"`
	TempDir string `mapstructure:"temp_dir"`
}

// Preferences is the user-facing settings snapshot a pipeline run is started with.
type Preferences struct {
	Model         string `mapstructure:"model" json:"model"`
	SummaryLength int    `mapstructure:"summary_length" json:"summaryLength"`
	Language      string `mapstructure:"language" json:"language"`
}

type Settings struct {
	Server        ServerConfig        `mapstructure:"server"`
	DB            DBConfig            `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Models        ModelsConfig        `mapstructure:"models"`
	Summarization SummarizationConfig `mapstructure:"summarization"`
	Files         FilesConfig         `mapstructure:"files"`
	Capture       CaptureConfig       `mapstructure:"capture"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	Media         MediaConfig         `mapstructure:"media"`
	Languages     map[string]string   `mapstructure:"languages"`
	Preferences   Preferences         `mapstructure:"preferences"`
	Env           string              `mapstructure:"env"`
	Debug         bool                `mapstructure:"debug"`
}

var (
	ErrInvalidTier  = errors.New("summary length must be between 1 and 5")
	ErrUnknownModel = errors.New("unknown model")
)

func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("config_" + genEnv(v))
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")
	return load(v)
}

func load(v *viper.Viper) (*Settings, error) {
	setDefaults(v)
	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func genEnv(v *viper.Viper) string {
	v.BindEnv("ENV")
	env := v.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}

// Validate checks the values the core relies on.
func (s *Settings) Validate() error {
	if s.Preferences.SummaryLength < 1 || s.Preferences.SummaryLength > 5 {
		return fmt.Errorf("preferences: %w", ErrInvalidTier)
	}
	if len(s.Models.Catalog) == 0 {
		return fmt.Errorf("models: empty catalog")
	}
	if _, ok := s.Model(s.Models.Default); !ok {
		return fmt.Errorf("models.default %q: %w", s.Models.Default, ErrUnknownModel)
	}
	switch s.Models.Backend {
	case "cli", "http":
	default:
		return fmt.Errorf("models.backend %q: must be cli or http", s.Models.Backend)
	}
	switch s.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver %q: must be mysql or sqlite", s.DB.Driver)
	}
	return nil
}

// Model looks up a catalog entry by logical name.
func (s *Settings) Model(name string) (ModelEntry, bool) {
	for _, m := range s.Models.Catalog {
		if m.Name == name {
			return m, true
		}
	}
	return ModelEntry{}, false
}

// MaxFileBytes is the configured ingest warning threshold in bytes.
func (s *Settings) MaxFileBytes() int64 {
	return int64(s.Files.MaxSizeMB) * 1024 * 1024
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("debug", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_seconds", 5)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "xscribe.sqlite")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.key", "xscribe:recent")

	v.SetDefault("models.catalog", catalogDefaults())
	v.SetDefault("models.default", "whisper-tiny")
	v.SetDefault("models.backend", "cli")
	v.SetDefault("models.cache_dir", "models")
	v.SetDefault("models.base_url", "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/")
	v.SetDefault("models.executable", "whisper-cli")
	v.SetDefault("models.service_url", "http://localhost:9000")

	v.SetDefault("summarization.base_url", "https://api.openai.com/v1/")
	v.SetDefault("summarization.model", "gpt-3.5-turbo")
	v.SetDefault("summarization.temperature", 0.5)
	v.SetDefault("summarization.max_tokens", 500)
	v.SetDefault("summarization.lengths", map[string]string{
		"1": "very short (1-2 sentences)",
		"2": "short (2-3 sentences)",
		"3": "medium length (3-5 sentences)",
		"4": "long (5-7 sentences)",
		"5": "very long (7-10 sentences)",
	})
	v.SetDefault("summarization.language_names", map[string]string{
		"sv":   "Swedish",
		"en":   "English",
		"auto": "the same language as the text",
	})

	v.SetDefault("files.max_size_mb", 25)
	v.SetDefault("files.audio_formats", []string{"mp3", "wav", "ogg", "flac", "m4a", "webm"})
	v.SetDefault("files.video_formats", []string{"mp4", "mov", "webm"})

	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("capture.max_seconds", 3600)

	v.SetDefault("jobs.ttl_minutes", 30)

	v.SetDefault("media.ffmpeg", "ffmpeg")
	v.SetDefault("media.ffprobe", "ffprobe")

	v.SetDefault("languages", map[string]string{
		"sv":   "Swedish",
		"en":   "English",
		"auto": "Automatic detection",
	})

	v.SetDefault("preferences.model", "whisper-small")
	v.SetDefault("preferences.summary_length", 3)
	v.SetDefault("preferences.language", "sv")
}

// DefaultCatalog is the built-in model catalog, smallest first.
func DefaultCatalog() []ModelEntry {
	return []ModelEntry{
		{Name: "whisper-tiny", DisplayName: "Whisper Tiny", ModelID: "ggml-tiny.bin", Size: "75 MB", SizeMB: 75, Speed: "very fast", Accuracy: "basic"},
		{Name: "whisper-base", DisplayName: "Whisper Base", ModelID: "ggml-base.bin", Size: "142 MB", SizeMB: 142, Speed: "fast", Accuracy: "good"},
		{Name: "whisper-small", DisplayName: "Whisper Small", ModelID: "ggml-small.bin", Size: "466 MB", SizeMB: 466, Speed: "medium", Accuracy: "very good"},
		{Name: "whisper-medium", DisplayName: "Whisper Medium", ModelID: "ggml-medium.bin", Size: "1.5 GB", SizeMB: 1500, Speed: "slow", Accuracy: "excellent"},
		{Name: "whisper-large", DisplayName: "Whisper Large", ModelID: "ggml-large-v2.bin", Size: "3 GB", SizeMB: 3000, Speed: "very slow", Accuracy: "superior"},
	}
}

func catalogDefaults() []map[string]interface{} {
	entries := DefaultCatalog()
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"name":         e.Name,
			"display_name": e.DisplayName,
			"model_id":     e.ModelID,
			"size":         e.Size,
			"size_mb":      e.SizeMB,
			"speed":        e.Speed,
			"accuracy":     e.Accuracy,
		})
	}
	return out
}
