package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dgallion1/doctranslate/internal/config"
)

// Viper keys. Each may come from the YAML config file or a bound flag.
const (
	keyProvider       = "provider"
	keyModel          = "model"
	keyGeminiAPIKey   = "gemini_api_key"
	keyOpenAIAPIKey   = "openai_api_key"
	keyOpenAIBaseURL  = "openai_base_url"
	keyRequestTimeout = "request_timeout"
	keyChunkSize      = "chunk_size"
	keyMaxRetries     = "max_retries"
	keyRetryBaseDelay = "retry_base_delay"
	keyContextChars   = "context_chars"
	keyConcurrency    = "concurrency"
	keyWhitespace     = "whitespace"
	keyOutputFormat   = "output_format"
	keyDOCXPageChars  = "docx_page_chars"
	keyPdftotext      = "pdf_fallback_pdftotext"
	keyValidatePDF    = "pdf_validate_output"
	keyPDFFont        = "pdf_font"
	keyPort           = "port"
	keyAPIKey         = "api_key"
	keyWorkerCount    = "worker_count"
	keyMaxQueueSize   = "max_queue_size"
	keyJobTTL         = "job_ttl"
	keyWorkDir        = "work_dir"
)

// flagKeys maps flag names to the viper keys they override.
var flagKeys = map[string]string{
	"provider":      keyProvider,
	"model":         keyModel,
	"output-format": keyOutputFormat,
	"chunk-size":    keyChunkSize,
	"context-chars": keyContextChars,
	"concurrency":   keyConcurrency,
	"whitespace":    keyWhitespace,
	"port":          keyPort,
}

// bindFlagsToViper binds every known flag present in fs.
func bindFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// InitConfig reads cfgFile, or $HOME/.doctranslate.yaml when cfgFile is empty.
// A missing default file is not an error; a missing explicit one is.
func InitConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".doctranslate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// ApplyOverrides copies every value set in the config file or on the command line onto cfg.
// Flags win over the file, the file wins over the environment.
func ApplyOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet(keyProvider) {
		cfg.Provider = strings.ToLower(strings.TrimSpace(v.GetString(keyProvider)))
	}
	if v.IsSet(keyModel) {
		if cfg.Provider == config.ProviderOpenAI {
			cfg.OpenAIModel = v.GetString(keyModel)
		} else {
			cfg.GeminiModel = v.GetString(keyModel)
		}
	}
	setString(v, keyGeminiAPIKey, &cfg.GeminiAPIKey)
	setString(v, keyOpenAIAPIKey, &cfg.OpenAIAPIKey)
	setString(v, keyOpenAIBaseURL, &cfg.OpenAIBaseURL)
	setDuration(v, keyRequestTimeout, &cfg.RequestTimeout)

	setInt(v, keyChunkSize, &cfg.MaxChunkSize)
	setInt(v, keyMaxRetries, &cfg.MaxRetries)
	setDuration(v, keyRetryBaseDelay, &cfg.RetryBaseDelay)
	setInt(v, keyContextChars, &cfg.ContextChars)
	setInt(v, keyConcurrency, &cfg.ChunkConcurrency)
	if v.IsSet(keyWhitespace) {
		cfg.WhitespacePolicy = strings.ToLower(v.GetString(keyWhitespace))
	}

	setString(v, keyOutputFormat, &cfg.OutputFormat)
	setInt(v, keyDOCXPageChars, &cfg.DOCXPageChars)
	setBool(v, keyPdftotext, &cfg.PDFFallbackPdftotext)
	setBool(v, keyValidatePDF, &cfg.PDFValidateOutput)
	setString(v, keyPDFFont, &cfg.PDFFont)

	setString(v, keyPort, &cfg.Port)
	setString(v, keyAPIKey, &cfg.APIKey)
	setInt(v, keyWorkerCount, &cfg.WorkerCount)
	setInt(v, keyMaxQueueSize, &cfg.MaxQueueSize)
	setDuration(v, keyJobTTL, &cfg.JobTTL)
	setString(v, keyWorkDir, &cfg.WorkDir)

	cfg.ApplyDefaults()
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}
