package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func str(key, env string, field func(cfg *Config) *string) keySpec {
	return keySpec{
		key: key, typ: kString, env: env,
		apply:   func(cfg *Config, v any) { *field(cfg) = v.(string) },
		extract: func(cfg Config) any { return *field(&cfg) },
	}
}

func num(key, env string, field func(cfg *Config) *int) keySpec {
	return keySpec{
		key: key, typ: kInt, env: env,
		apply:   func(cfg *Config, v any) { *field(cfg) = v.(int) },
		extract: func(cfg Config) any { return *field(&cfg) },
	}
}

func secret(key, env string, field func(cfg *Config) *string) keySpec {
	s := str(key, env, field)
	s.secret = true
	return s
}

var specs = []keySpec{
	str("server.host", "SCR_SERVER_HOST", func(c *Config) *string { return &c.Server.Host }),
	num("server.port", "SCR_SERVER_PORT", func(c *Config) *int { return &c.Server.Port }),
	secret("server.api_token", "SCR_API_TOKEN", func(c *Config) *string { return &c.Server.APIToken }),

	str("encoder.provider", "SCR_ENCODER_PROVIDER", func(c *Config) *string { return &c.Encoder.Provider }),
	str("encoder.model", "SCR_ENCODER_MODEL", func(c *Config) *string { return &c.Encoder.Model }),
	str("encoder.base_url", "SCR_ENCODER_BASE_URL", func(c *Config) *string { return &c.Encoder.BaseURL }),
	num("encoder.dimension", "SCR_ENCODER_DIMENSION", func(c *Config) *int { return &c.Encoder.Dimension }),
	secret("encoder.openai_api_key", "SCR_OPENAI_API_KEY", func(c *Config) *string { return &c.Encoder.OpenAIAPIKey }),
	secret("encoder.gemini_api_key", "SCR_GEMINI_API_KEY", func(c *Config) *string { return &c.Encoder.GeminiAPIKey }),

	str("artifacts.dir", "SCR_ARTIFACTS_DIR", func(c *Config) *string { return &c.Artifacts.Dir }),
	str("artifacts.cache_dir", "SCR_ARTIFACTS_CACHE_DIR", func(c *Config) *string { return &c.Artifacts.CacheDir }),
	str("artifacts.embeddings", "SCR_ARTIFACTS_EMBEDDINGS", func(c *Config) *string { return &c.Artifacts.Embeddings }),
	str("artifacts.metadata", "SCR_ARTIFACTS_METADATA", func(c *Config) *string { return &c.Artifacts.Metadata }),
	str("artifacts.index", "SCR_ARTIFACTS_INDEX", func(c *Config) *string { return &c.Artifacts.Index }),
	str("artifacts.dataset", "SCR_ARTIFACTS_DATASET", func(c *Config) *string { return &c.Artifacts.Dataset }),

	num("retrieval.top_k", "SCR_RETRIEVAL_TOP_K", func(c *Config) *int { return &c.Retrieval.TopK }),
	num("retrieval.overfetch_factor", "SCR_RETRIEVAL_OVERFETCH_FACTOR", func(c *Config) *int { return &c.Retrieval.OverfetchFactor }),
	num("retrieval.min_fetch", "SCR_RETRIEVAL_MIN_FETCH", func(c *Config) *int { return &c.Retrieval.MinFetch }),
	str("retrieval.metric", "SCR_RETRIEVAL_METRIC", func(c *Config) *string { return &c.Retrieval.Metric }),

	str("aws.region", "SCR_AWS_REGION", func(c *Config) *string { return &c.AWS.Region }),
	str("aws.endpoint", "SCR_AWS_ENDPOINT", func(c *Config) *string { return &c.AWS.Endpoint }),
	secret("aws.access_key_id", "SCR_AWS_ACCESS_KEY_ID", func(c *Config) *string { return &c.AWS.AccessKeyID }),
	secret("aws.secret_access_key", "SCR_AWS_SECRET_ACCESS_KEY", func(c *Config) *string { return &c.AWS.SecretAccessKey }),

	str("log.level", "SCR_LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }),
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}
