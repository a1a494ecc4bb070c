package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

type Config struct {
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"agent_chat.db"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`

	JWTSecret   string `env:"JWT_SECRET"`
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
	AuthIssuer  string `env:"AUTH_ISSUER"`

	CompletionProvider   string `env:"COMPLETION_PROVIDER" envDefault:"ollama"`
	EmbeddingProvider    string `env:"EMBEDDING_PROVIDER" envDefault:"ollama"`
	OllamaBaseURL        string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel          string `env:"OLLAMA_MODEL" envDefault:"llama2"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	GeminiAPIKey         string `env:"GEMINI_API_KEY"`
	GeminiChatModel      string `env:"GEMINI_CHAT_MODEL" envDefault:"gemini-1.5-flash-latest"`
	GeminiEmbeddingModel string `env:"GEMINI_EMBEDDING_MODEL" envDefault:"text-embedding-004"`
	EmbeddingCacheSize   int    `env:"EMBEDDING_CACHE_SIZE" envDefault:"1024"`

	VectorSearchEnabled bool          `env:"VECTOR_SEARCH_ENABLED" envDefault:"true"`
	ChunkSize           int           `env:"CHUNK_SIZE" envDefault:"500"`
	MaxUploadBytes      int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	StreamTimeout       time.Duration `env:"STREAM_TIMEOUT" envDefault:"60s"`
	PromptTimeout       time.Duration `env:"PROMPT_TIMEOUT" envDefault:"30s"`
	SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	MaxSessions         int           `env:"MAX_SESSIONS" envDefault:"1000"`
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads an optional .env file, then parses and validates the environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" && strings.TrimSpace(c.AuthJWKSURL) == "" {
		return errors.New("one of JWT_SECRET or AUTH_JWKS_URL is required")
	}

	switch c.CompletionProvider {
	case ProviderOllama, ProviderGemini:
	default:
		return fmt.Errorf("unsupported COMPLETION_PROVIDER %q", c.CompletionProvider)
	}
	switch c.EmbeddingProvider {
	case ProviderOllama, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	if (c.CompletionProvider == ProviderGemini || c.EmbeddingProvider == ProviderGemini) && c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required for the gemini provider")
	}

	if c.ChunkSize <= 0 {
		return errors.New("CHUNK_SIZE must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return errors.New("SIMILARITY_THRESHOLD must be within (0, 1]")
	}
	if c.MaxSessions <= 0 {
		return errors.New("MAX_SESSIONS must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
