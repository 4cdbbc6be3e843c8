package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// MaxRetriesLimit bounds MAX_RETRIES.
const MaxRetriesLimit = 12

type Config struct {
	// Remote translation API
	Provider       string
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	RequestTimeout time.Duration

	// Chunking and retry
	MaxChunkSize     int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	ContextChars     int
	ChunkConcurrency int
	WhitespacePolicy string

	// Formats
	OutputFormat         string
	DOCXPageChars        int
	PDFFallbackPdftotext bool
	PDFValidateOutput    bool
	PDFFont              string

	// HTTP service
	Port           string
	APIKey         string
	WorkerCount    int
	MaxQueueSize   int
	MaxUploadBytes int64
	JobTTL         time.Duration
	WorkDir        string
}

// LoadEnvFile loads KEY=VALUE pairs from the given dotenv files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() Config {
	cfg := Config{
		Provider:       strings.ToLower(envOr("TRANSLATOR_PROVIDER", ProviderGemini)),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:    envOr("OPENAI_MODEL", "gpt-4o-mini"),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 2*time.Minute),

		MaxChunkSize:     envInt("MAX_CHUNK_SIZE", 10000),
		MaxRetries:       envInt("MAX_RETRIES", 5),
		RetryBaseDelay:   envDuration("RETRY_BASE_DELAY", 1*time.Second),
		ContextChars:     envInt("CONTEXT_CHARS", 0),
		ChunkConcurrency: envInt("CHUNK_CONCURRENCY", 1),
		WhitespacePolicy: strings.ToLower(envOr("WHITESPACE_POLICY", "lines")),

		OutputFormat:         os.Getenv("OUTPUT_FORMAT"),
		DOCXPageChars:        envInt("DOCX_PAGE_CHARS", 3000),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
		PDFValidateOutput:    envBool("PDF_VALIDATE_OUTPUT", false),
		PDFFont:              os.Getenv("PDF_FONT"),

		Port:           envOr("PORT", "8091"),
		APIKey:         os.Getenv("DOCTRANSLATE_API_KEY"),
		WorkerCount:    envInt("WORKER_COUNT", 2),
		MaxQueueSize:   envInt("MAX_QUEUE_SIZE", 20),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		JobTTL:         envDuration("JOB_TTL", 1*time.Hour),
		WorkDir:        envOr("WORK_DIR", os.TempDir()),
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults clamps out-of-range values back to their defaults.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = 10000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MaxRetries > MaxRetriesLimit {
		c.MaxRetries = MaxRetriesLimit
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 1 * time.Second
	}
	if c.ContextChars < 0 {
		c.ContextChars = 0
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = 1
	}
	if c.WhitespacePolicy == "" {
		c.WhitespacePolicy = "lines"
	}
	if c.DOCXPageChars <= 0 {
		c.DOCXPageChars = 3000
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 20
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
}

// Validate checks what every command needs: a known provider with its credential.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown TRANSLATOR_PROVIDER %q (want %s or %s)", c.Provider, ProviderGemini, ProviderOpenAI)
	}
	switch c.WhitespacePolicy {
	case "preserve", "lines", "collapse":
	default:
		return fmt.Errorf("unknown WHITESPACE_POLICY %q", c.WhitespacePolicy)
	}
	return nil
}

// ValidateServer adds the requirements of the HTTP service.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DOCTRANSLATE_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
