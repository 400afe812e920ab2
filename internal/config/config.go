// Package config loads ytrag settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted for EmbedProvider / LLMProvider.
const (
	ProviderGoogleAI  = "googleai"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderVoyageAI  = "voyageai"
	ProviderBedrock   = "bedrock"
)

// Caption sources accepted for CaptionSource.
const (
	CaptionSourceYtdlp     = "ytdlp"
	CaptionSourceInnertube = "innertube"
)

// Config holds all configuration values.
type Config struct {
	// Retrieval pipeline
	ChunkMaxSize     int     `yaml:"chunk_max_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	RetrievalK       int     `yaml:"retrieval_k"`
	ModelTemperature float64 `yaml:"model_temperature"`

	// Embedding provider
	EmbedProvider  string `yaml:"embed_provider"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension"` // 0 accepts whatever the model returns
	EmbedBatchSize int    `yaml:"embed_batch_size"`

	// Language model
	LLMProvider string `yaml:"llm_provider"`
	LLMModel    string `yaml:"llm_model"`

	// Provider credentials and endpoints
	GoogleAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	VoyageAPIKey    string `yaml:"-"`
	OllamaHost      string `yaml:"ollama_host"`
	AWSRegion       string `yaml:"aws_region"`

	// Transcript acquisition
	CaptionSource   string        `yaml:"caption_source"`
	YtdlpPath       string        `yaml:"ytdlp_path"`
	CaptionFormat   string        `yaml:"caption_format"`
	SubtitleTimeout time.Duration `yaml:"subtitle_timeout"`
	TranscriptClean bool          `yaml:"transcript_clean"`

	// HTTP server
	ServerPort    string        `yaml:"server_port"`
	IngestTimeout time.Duration `yaml:"ingest_timeout"`
	AskTimeout    time.Duration `yaml:"ask_timeout"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ChunkMaxSize:     1000,
		ChunkOverlap:     200,
		RetrievalK:       4,
		ModelTemperature: 0.7,

		EmbedProvider:  ProviderGoogleAI,
		EmbedModel:     "gemini-embedding-001",
		EmbedBatchSize: 100,

		LLMProvider: ProviderGoogleAI,
		LLMModel:    "gemini-2.5-flash",

		OllamaHost: "http://localhost:11434",
		AWSRegion:  "us-east-1",

		CaptionSource:   CaptionSourceYtdlp,
		YtdlpPath:       "yt-dlp",
		CaptionFormat:   "vtt",
		SubtitleTimeout: 10 * time.Second,
		TranscriptClean: true,

		ServerPort:    "8000",
		IngestTimeout: 120 * time.Second,
		AskTimeout:    60 * time.Second,

		LogFile:  "/tmp/ytrag.log",
		LogLevel: slog.LevelInfo,
	}
}

// Load reads configuration: defaults, then the YAML file named by YTRAG_CONFIG
// (if set), then environment variables. Environment always wins.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("YTRAG_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// mergeFile overlays YAML settings from path onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ChunkMaxSize = getEnvInt("YTRAG_CHUNK_MAX_SIZE", c.ChunkMaxSize)
	c.ChunkOverlap = getEnvInt("YTRAG_CHUNK_OVERLAP", c.ChunkOverlap)
	c.RetrievalK = getEnvInt("YTRAG_RETRIEVAL_K", c.RetrievalK)
	c.ModelTemperature = getEnvFloat("YTRAG_TEMPERATURE", c.ModelTemperature)

	c.EmbedProvider = getEnv("YTRAG_EMBED_PROVIDER", c.EmbedProvider)
	c.EmbedModel = getEnv("YTRAG_EMBED_MODEL", c.EmbedModel)
	c.EmbedDimension = getEnvInt("YTRAG_EMBED_DIMENSION", c.EmbedDimension)
	c.EmbedBatchSize = getEnvInt("YTRAG_EMBED_BATCH_SIZE", c.EmbedBatchSize)

	c.LLMProvider = getEnv("YTRAG_LLM_PROVIDER", c.LLMProvider)
	c.LLMModel = getEnv("YTRAG_LLM_MODEL", c.LLMModel)

	c.GoogleAPIKey = getEnv("GOOGLE_API_KEY", c.GoogleAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.VoyageAPIKey = getEnv("VOYAGE_API_KEY", c.VoyageAPIKey)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.CaptionSource = getEnv("YTRAG_CAPTION_SOURCE", c.CaptionSource)
	c.YtdlpPath = getEnv("YTRAG_YTDLP_PATH", c.YtdlpPath)
	c.CaptionFormat = getEnv("YTRAG_CAPTION_FORMAT", c.CaptionFormat)
	c.SubtitleTimeout = getEnvDuration("YTRAG_SUBTITLE_TIMEOUT", c.SubtitleTimeout)
	c.TranscriptClean = getEnvBool("YTRAG_TRANSCRIPT_CLEAN", c.TranscriptClean)

	// PORT matches common PaaS conventions; YTRAG_SERVER_PORT takes precedence.
	c.ServerPort = getEnv("YTRAG_SERVER_PORT", getEnv("PORT", c.ServerPort))
	c.IngestTimeout = getEnvDuration("YTRAG_INGEST_TIMEOUT", c.IngestTimeout)
	c.AskTimeout = getEnvDuration("YTRAG_ASK_TIMEOUT", c.AskTimeout)

	c.LogFile = getEnv("YTRAG_LOG_FILE", c.LogFile)
	c.LogLevel = parseLogLevel(getEnv("YTRAG_LOG_LEVEL", c.LogLevel.String()))
}

var (
	knownEmbedProviders = []string{ProviderGoogleAI, ProviderOpenAI, ProviderOllama, ProviderVoyageAI, ProviderBedrock}
	knownLLMProviders   = []string{ProviderGoogleAI, ProviderOpenAI, ProviderOllama, ProviderAnthropic, ProviderBedrock}
	knownSources        = []string{CaptionSourceYtdlp, CaptionSourceInnertube}
)

// Validate checks ranges and provider names. All problems are reported together.
func (c Config) Validate() error {
	var errs []error

	if c.ChunkMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk max size must be positive, got %d", c.ChunkMaxSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkMaxSize, c.ChunkOverlap))
	}
	if c.RetrievalK < 1 {
		errs = append(errs, fmt.Errorf("retrieval k must be at least 1, got %d", c.RetrievalK))
	}
	if c.ModelTemperature < 0 || c.ModelTemperature > 2 {
		errs = append(errs, fmt.Errorf("model temperature must be in [0, 2], got %g", c.ModelTemperature))
	}
	if c.EmbedBatchSize < 1 {
		errs = append(errs, fmt.Errorf("embed batch size must be at least 1, got %d", c.EmbedBatchSize))
	}
	if c.EmbedDimension < 0 {
		errs = append(errs, fmt.Errorf("embed dimension must not be negative, got %d", c.EmbedDimension))
	}
	if !contains(knownEmbedProviders, c.EmbedProvider) {
		errs = append(errs, fmt.Errorf("unsupported embedding provider: %q", c.EmbedProvider))
	}
	if !contains(knownLLMProviders, c.LLMProvider) {
		errs = append(errs, fmt.Errorf("unsupported LLM provider: %q", c.LLMProvider))
	}
	if !contains(knownSources, c.CaptionSource) {
		errs = append(errs, fmt.Errorf("unsupported caption source: %q", c.CaptionSource))
	}
	if c.SubtitleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("subtitle timeout must be positive, got %s", c.SubtitleTimeout))
	}

	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid float setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		slog.Warn("ignoring invalid boolean setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration setting", "key", key, "value", val)
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
