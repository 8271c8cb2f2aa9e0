package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/ladder/internal/similarity"
)

// DefaultPath is the config file read when neither a flag nor LADDER_CONFIG names one.
const DefaultPath = "ladder.yaml"

type Config struct {
	DataDir     string           `yaml:"data_dir" validate:"required"`
	Output      string           `yaml:"output" validate:"required"`
	Categories  []string         `yaml:"categories" validate:"min=1,dive,required"`
	Workers     int              `yaml:"workers" validate:"min=1,max=64"`
	LogLevel    string           `yaml:"log_level" validate:"oneof=debug info warn error"`
	Similarity  SimilarityConfig `yaml:"similarity"`
	DatabaseURL string           `yaml:"database_url"`
	NatsURL     string           `yaml:"nats_url"`
	NatsToken   string           `yaml:"nats_token"`
	Port        int              `yaml:"port" validate:"min=1,max=65535"`
	APIToken    string           `yaml:"api_token"`
}

type SimilarityConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=local service openai"`
	URL            string `yaml:"url" validate:"required_if=Backend service"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=1"`
	APIKey         string `yaml:"api_key" validate:"required_if=Backend openai"`
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	EmbeddingModel string `yaml:"embedding_model" validate:"required"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		DataDir:    "data",
		Output:     "ladder_question_responses.csv",
		Categories: []string{"black", "hispanic/latino", "white", "asian"},
		Workers:    1,
		LogLevel:   "info",
		Similarity: SimilarityConfig{
			Backend:        similarity.BackendLocal,
			TimeoutSeconds: 30,
			EmbeddingModel: "text-embedding-3-small",
		},
		Port: 8760,
	}
}

// Load builds the configuration from defaults, then the YAML file at path,
// then the environment (including a .env file in the working directory).
// An empty path uses LADDER_CONFIG or DefaultPath; a missing file is ignored.
func Load(path string) (Config, error) {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = envStr("LADDER_CONFIG", DefaultPath)
	}
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	cfg.DataDir = envStr("LADDER_DATA_DIR", cfg.DataDir)
	cfg.Output = envStr("LADDER_OUTPUT", cfg.Output)
	cfg.Categories = envList("LADDER_CATEGORIES", cfg.Categories)
	cfg.Workers = envInt("LADDER_WORKERS", cfg.Workers)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.Similarity.Backend = envStr("SIMILARITY_BACKEND", cfg.Similarity.Backend)
	cfg.Similarity.URL = envStr("SIMILARITY_URL", cfg.Similarity.URL)
	cfg.Similarity.TimeoutSeconds = envInt("SIMILARITY_TIMEOUT", cfg.Similarity.TimeoutSeconds)
	cfg.Similarity.APIKey = envStr("OPENAI_API_KEY", cfg.Similarity.APIKey)
	cfg.Similarity.BaseURL = envStr("OPENAI_BASE_URL", cfg.Similarity.BaseURL)
	cfg.Similarity.EmbeddingModel = envStr("EMBEDDING_MODEL", cfg.Similarity.EmbeddingModel)
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.NatsURL = envStr("NATS_URL", cfg.NatsURL)
	cfg.NatsToken = envStr("NATS_TOKEN", cfg.NatsToken)
	cfg.Port = envInt("LADDER_PORT", cfg.Port)
	cfg.APIToken = envStr("LADDER_API_TOKEN", cfg.APIToken)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SimilarityTimeout bounds one oracle call.
func (c Config) SimilarityTimeout() time.Duration {
	return time.Duration(c.Similarity.TimeoutSeconds) * time.Second
}

// SimilarityOptions selects the oracle backend.
func (c Config) SimilarityOptions() similarity.Options {
	return similarity.Options{
		Backend:        c.Similarity.Backend,
		URL:            c.Similarity.URL,
		APIKey:         c.Similarity.APIKey,
		BaseURL:        c.Similarity.BaseURL,
		EmbeddingModel: c.Similarity.EmbeddingModel,
		Timeout:        c.SimilarityTimeout(),
	}
}

func envStr(key, fallback string) string {
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

// envList reads a comma-separated list, dropping empty items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
