package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server    ServerConfig
	Encoder   EncoderConfig
	Artifacts ArtifactsConfig
	Retrieval RetrievalConfig
	AWS       AWSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// APIToken enables bearer auth on the HTTP API when set.
	APIToken string
}

// Addr returns host:port for listening or dialing.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type EncoderConfig struct {
	Provider string
	Model    string
	// BaseURL is empty for the provider's default endpoint.
	BaseURL      string
	Dimension    int
	OpenAIAPIKey string
	GeminiAPIKey string
}

// APIKey returns the secret for the configured provider, if it needs one.
func (e EncoderConfig) APIKey() string {
	switch e.Provider {
	case "openai":
		return e.OpenAIAPIKey
	case "gemini":
		return e.GeminiAPIKey
	}
	return ""
}

// Validate checks that the provider is known and has its secret.
func (e EncoderConfig) Validate() error {
	switch e.Provider {
	case "ollama", "hash":
		return nil
	case "openai":
		if e.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: encoder.provider=openai needs SCR_OPENAI_API_KEY", ErrInvalid)
		}
		return nil
	case "gemini":
		if e.GeminiAPIKey == "" {
			return fmt.Errorf("%w: encoder.provider=gemini needs SCR_GEMINI_API_KEY", ErrInvalid)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown encoder.provider %q", ErrInvalid, e.Provider)
	}
}

type ArtifactsConfig struct {
	// Dir is a local directory or an s3://bucket/prefix URL.
	Dir        string
	CacheDir   string
	Embeddings string
	Metadata   string
	Index      string
	Dataset    string
}

type RetrievalConfig struct {
	TopK            int
	OverfetchFactor int
	MinFetch        int
	Metric          string
}

type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4100,
		},
		Encoder: EncoderConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Dimension: 768,
		},
		Artifacts: ArtifactsConfig{
			Dir:        defaultArtifactsDir(),
			CacheDir:   defaultCacheDir(),
			Embeddings: "embeddings.npy",
			Metadata:   "metadata.db",
			Index:      "cases.index",
			Dataset:    "dataset.jsonl",
		},
		Retrieval: RetrievalConfig{
			TopK:            10,
			OverfetchFactor: 5,
			MinFetch:        50,
			Metric:          "ip",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML config file and SCR_* environment
// variables, in that order of precedence over the defaults. Secrets are
// only read from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	cfg.Encoder.Provider = strings.ToLower(strings.TrimSpace(cfg.Encoder.Provider))
	cfg.Retrieval.Metric = strings.ToLower(strings.TrimSpace(cfg.Retrieval.Metric))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Encoder.Provider {
	case "ollama", "openai", "gemini", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown encoder.provider %q (want ollama, openai, gemini or hash)", c.Encoder.Provider))
	}
	if c.Encoder.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("encoder.dimension must be positive, got %d", c.Encoder.Dimension))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.OverfetchFactor <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.overfetch_factor must be positive, got %d", c.Retrieval.OverfetchFactor))
	}
	if c.Retrieval.MinFetch <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.min_fetch must be positive, got %d", c.Retrieval.MinFetch))
	}
	switch c.Retrieval.Metric {
	case "ip", "l2":
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval.metric %q (want ip or l2)", c.Retrieval.Metric))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
