package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	FileURL  string `envconfig:"FILE_URL" required:"true"`
	UserID   string `envconfig:"USER_ID" default:"42"`
	BookID   string `envconfig:"BOOK_ID" default:"7"`
	FileName string `envconfig:"FILE_NAME" default:"file_1.mp4"`

	InternalRoot   string   `envconfig:"INTERNAL_ROOT" default:"data"`
	RemovableRoots []string `envconfig:"REMOVABLE_ROOTS"`

	DBPath            string        `envconfig:"DB_PATH" default:"pocsdcard.db"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	MediaPollInterval time.Duration `envconfig:"MEDIA_POLL_INTERVAL" default:"5s"`
	JobRetention      time.Duration `envconfig:"JOB_RETENTION" default:"24h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DownloadTimeout   time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
	}

	Telemetry struct {
		Enabled        bool          `split_words:"true" default:"true"`
		ServiceName    string        `split_words:"true" default:"pocsdcard"`
		ServiceVersion string        `split_words:"true" default:"dev"`
		OTLPEndpoint   string        `envconfig:"OTLP_ENDPOINT"`
		OTLPInsecure   bool          `envconfig:"OTLP_INSECURE" default:"true"`
		ExportInterval time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// Removable returns the configured removable roots with blanks dropped.
func (c *Config) Removable() []string {
	roots := make([]string, 0, len(c.RemovableRoots))

	for _, root := range c.RemovableRoots {
		if root = strings.TrimSpace(root); root != "" {
			roots = append(roots, root)
		}
	}

	return roots
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
