package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	LLM      LLMConfig      `yaml:"llm" mapstructure:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Budget   BudgetConfig   `yaml:"budget" mapstructure:"budget"`
	Pricing  PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the outcome store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_if=Driver postgres"`
	DSN         string `yaml:"dsn" mapstructure:"dsn" validate:"required_if=Driver sqlite"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// SearchConfig configures source discovery.
type SearchConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider" validate:"oneof=google jina"`
	GoogleKey      string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	GoogleCX       string  `yaml:"google_cx" mapstructure:"google_cx"`
	GoogleURL      string  `yaml:"google_base_url" mapstructure:"google_base_url"`
	JinaKey        string  `yaml:"jina_api_key" mapstructure:"jina_api_key"`
	JinaURL        string  `yaml:"jina_search_url" mapstructure:"jina_search_url"`
	Language       string  `yaml:"language" mapstructure:"language"`
	Country        string  `yaml:"country" mapstructure:"country"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
	Burst          int     `yaml:"burst" mapstructure:"burst" validate:"gte=1"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	BackoffSecs    float64 `yaml:"backoff_secs" mapstructure:"backoff_secs" validate:"gte=0"`
	MaxBackoffSecs float64 `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs" validate:"gte=0"`

	// Site restricts jina search to one domain. Google engines are scoped
	// by their cx configuration instead.
	Site string `yaml:"site" mapstructure:"site"`

	// Exclude drops results before ranking. Entries starting with "/" are
	// path globs; others are host suffixes.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// FetchConfig configures content retrieval.
type FetchConfig struct {
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gte=1024"`
	MaxPDFBytes   int64  `yaml:"max_pdf_bytes" mapstructure:"max_pdf_bytes" validate:"gte=1024"`
	PDFPages      int    `yaml:"pdf_pages" mapstructure:"pdf_pages" validate:"gte=0"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	JinaFallback  bool   `yaml:"jina_fallback" mapstructure:"jina_fallback"`
	JinaKey       string `yaml:"jina_api_key" mapstructure:"jina_api_key"`
	JinaURL       string `yaml:"jina_reader_url" mapstructure:"jina_reader_url"`
}

// LLMConfig configures the extraction model.
type LLMConfig struct {
	Provider     string  `yaml:"provider" mapstructure:"provider" validate:"oneof=openai anthropic"`
	Model        string  `yaml:"model" mapstructure:"model" validate:"required"`
	OpenAIKey    string  `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIURL    string  `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	AnthropicKey string  `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	AnthropicURL string  `yaml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	System       string  `yaml:"system" mapstructure:"system"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=1"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
	Burst        int     `yaml:"burst" mapstructure:"burst" validate:"gte=1"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// PipelineConfig configures the per-candidate state machine and worker pool.
type PipelineConfig struct {
	Schema                 string  `yaml:"schema" mapstructure:"schema"`
	SchemaFile             string  `yaml:"schema_file" mapstructure:"schema_file"`
	MaxSourcesPerCandidate int     `yaml:"max_sources_per_candidate" mapstructure:"max_sources_per_candidate" validate:"gte=1"`
	MaxPromptLength        int     `yaml:"max_prompt_length" mapstructure:"max_prompt_length" validate:"gte=1"`
	RetryCount             int     `yaml:"retry_count" mapstructure:"retry_count" validate:"gte=0"`
	FocusWords             int     `yaml:"focus_words" mapstructure:"focus_words" validate:"gte=0"`
	Concurrency            int     `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
	CandidateTimeoutSecs   int     `yaml:"candidate_timeout_secs" mapstructure:"candidate_timeout_secs" validate:"gte=1"`
	RetryBackoffSecs       float64 `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
	RetryMaxBackoffSecs    float64 `yaml:"retry_max_backoff_secs" mapstructure:"retry_max_backoff_secs"`
}

// BudgetConfig caps run spend. Zero disables the cap.
type BudgetConfig struct {
	MaxUSD float64 `yaml:"max_usd" mapstructure:"max_usd" validate:"gte=0"`
}

// PricingConfig holds token rates in USD per million tokens. Entries here
// override the built-in rate table.
type PricingConfig struct {
	Models []ModelPricing `yaml:"models" mapstructure:"models" validate:"dive"`
	Search SearchPricing  `yaml:"search" mapstructure:"search"`
}

// ModelPricing holds input/output rates for a single model.
type ModelPricing struct {
	Model  string  `yaml:"model" mapstructure:"model" validate:"required"`
	Input  float64 `yaml:"input" mapstructure:"input" validate:"gte=0"`
	Output float64 `yaml:"output" mapstructure:"output" validate:"gte=0"`
}

// SearchPricing prices a single search query.
type SearchPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from a .env file, config.yaml, and environment.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIOEXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "bioextract.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("search.provider", "google")
	v.SetDefault("search.google_api_key", "")
	v.SetDefault("search.google_cx", "")
	v.SetDefault("search.google_base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.jina_api_key", "")
	v.SetDefault("search.jina_search_url", "https://s.jina.ai")
	v.SetDefault("search.language", "lang_en")
	v.SetDefault("search.country", "countryUS")
	v.SetDefault("search.site", "")
	v.SetDefault("search.rate_per_sec", 1.0)
	v.SetDefault("search.burst", 1)
	v.SetDefault("search.concurrency", 2)
	v.SetDefault("search.timeout_secs", 10)
	v.SetDefault("search.backoff_secs", 45.0)
	v.SetDefault("search.max_backoff_secs", 75.0)

	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; BioExtract/1.0)")
	v.SetDefault("fetch.max_body_bytes", 4<<20)
	v.SetDefault("fetch.max_pdf_bytes", 25<<20)
	v.SetDefault("fetch.pdf_pages", 3)
	v.SetDefault("fetch.pdftotext_path", "pdftotext")
	v.SetDefault("fetch.jina_fallback", true)
	v.SetDefault("fetch.jina_api_key", "")
	v.SetDefault("fetch.jina_reader_url", "https://r.jina.ai")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-3.5-turbo-0125")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.anthropic_base_url", "")
	v.SetDefault("llm.system", "Act as a summarizer")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 400)
	v.SetDefault("llm.rate_per_sec", 3.0)
	v.SetDefault("llm.burst", 3)
	v.SetDefault("llm.concurrency", 4)
	v.SetDefault("llm.timeout_secs", 60)

	v.SetDefault("pipeline.schema", "candidate_bio")
	v.SetDefault("pipeline.schema_file", "")
	v.SetDefault("pipeline.max_sources_per_candidate", 4)
	v.SetDefault("pipeline.max_prompt_length", 12000)
	v.SetDefault("pipeline.retry_count", 5)
	v.SetDefault("pipeline.focus_words", 400)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.candidate_timeout_secs", 600)
	v.SetDefault("pipeline.retry_backoff_secs", 1.0)
	v.SetDefault("pipeline.retry_max_backoff_secs", 60.0)

	v.SetDefault("budget.max_usd", 0.0)
	v.SetDefault("pricing.search.per_query", 0.005)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

// ValidateCredentials checks that the selected providers have API keys.
// Only commands that call external services need this.
func (c *Config) ValidateCredentials() error {
	var missing []string
	switch c.Search.Provider {
	case "google":
		if c.Search.GoogleKey == "" {
			missing = append(missing, "search.google_api_key is required")
		}
		if c.Search.GoogleCX == "" {
			missing = append(missing, "search.google_cx is required")
		}
	case "jina":
		if c.Search.JinaKey == "" {
			missing = append(missing, "search.jina_api_key is required")
		}
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			missing = append(missing, "llm.openai_api_key is required")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			missing = append(missing, "llm.anthropic_api_key is required")
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
