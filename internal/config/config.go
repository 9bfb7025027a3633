package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/italolelis/chunk_transfer/internal/transfer"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProtocolMultipart = "multipart"
	ProtocolChunk     = "chunk"

	WindowSliding = "sliding"
	WindowBatched = "batched"
)

// Config struct for environment variables.
type Config struct {
	ServerURL         string        `envconfig:"SERVER_URL"`
	APIToken          string        `envconfig:"API_TOKEN"`
	Protocol          string        `envconfig:"PROTOCOL" default:"multipart"`
	RegularUploadPath string        `envconfig:"REGULAR_UPLOAD_PATH" default:"/v1/file/upload"`
	ChunkSize         string        `envconfig:"CHUNK_SIZE" default:"5MiB"`
	Concurrency       int           `envconfig:"CONCURRENCY" default:"3"`
	Window            string        `envconfig:"WINDOW" default:"sliding"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"2"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	TargetDir         string        `envconfig:"TARGET_DIR" default:"."`
	DBPath            string        `envconfig:"DB_PATH" default:"transfers.db"`
	KeepHistoryFor    time.Duration `envconfig:"KEEP_HISTORY_FOR" default:"720h"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool          `split_words:"true" default:"false"`
		ServiceName  string        `split_words:"true" default:"chunk_transfer"`
		OTLPEndpoint string        `split_words:"true"`
		OTLPInsecure bool          `split_words:"true" default:"false"`
		OTLPInterval time.Duration `split_words:"true" default:"30s"`
	}

	Web struct {
		Enabled         bool          `split_words:"true" default:"false"`
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values envconfig cannot check on its own.
func (c *Config) Validate() error {
	switch c.Protocol {
	case ProtocolMultipart, ProtocolChunk:
	default:
		return fmt.Errorf("invalid PROTOCOL %q: must be %q or %q", c.Protocol, ProtocolMultipart, ProtocolChunk)
	}

	switch c.Window {
	case WindowSliding, WindowBatched:
	default:
		return fmt.Errorf("invalid WINDOW %q: must be %q or %q", c.Window, WindowSliding, WindowBatched)
	}

	opts, err := c.TransferOptions()
	if err != nil {
		return err
	}

	return opts.Validate()
}

// ChunkSizeBytes parses CHUNK_SIZE. Both "5MiB" and "5MB" mean 5*1024*1024.
func (c *Config) ChunkSizeBytes() (int64, error) {
	size, err := units.RAMInBytes(c.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("invalid CHUNK_SIZE %q: %w", c.ChunkSize, err)
	}

	return size, nil
}

// TransferOptions converts the configuration into upload options.
func (c *Config) TransferOptions() (transfer.Options, error) {
	size, err := c.ChunkSizeBytes()
	if err != nil {
		return transfer.Options{}, err
	}

	window := transfer.WindowSliding
	if c.Window == WindowBatched {
		window = transfer.WindowBatched
	}

	return transfer.Options{
		ChunkSize:   size,
		Concurrency: c.Concurrency,
		MaxRetries:  c.MaxRetries,
		Window:      window,
	}, nil
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
