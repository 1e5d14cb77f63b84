package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config carries the runtime configuration. Credentials are always injected
// through the environment, never embedded in code.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY,required,notEmpty"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	GenTemperature     float32 `env:"GEN_TEMPERATURE" envDefault:"0.7"`
	GenTopK            int32   `env:"GEN_TOP_K" envDefault:"40"`
	GenTopP            float32 `env:"GEN_TOP_P" envDefault:"0.95"`
	GenMaxOutputTokens int32   `env:"GEN_MAX_OUTPUT_TOKENS" envDefault:"2048"`

	ImageAPIToken string `env:"IMAGE_API_TOKEN"`
	ImageModelURL string `env:"IMAGE_MODEL_URL" envDefault:"https://api-inference.huggingface.co/models/prompthero/openjourney"`

	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"aichat_prefs.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	HistoryCap     int           `env:"HISTORY_CAP" envDefault:"50"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RevealInterval time.Duration `env:"REVEAL_INTERVAL" envDefault:"30ms"`
	RevealStep     int           `env:"REVEAL_STEP" envDefault:"3"`
}

// Load reads .env if present and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine, rely on the environment

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
