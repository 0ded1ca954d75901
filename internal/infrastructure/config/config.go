package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load
const EnvPrefix = "FORMULA"

// Config holds all configuration for the gateway
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Recognizer RecognizerConfig `mapstructure:"recognizer"`
	Solver     SolverConfig     `mapstructure:"solver"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Startup    StartupConfig    `mapstructure:"startup"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// RecognizerConfig describes the recognition model backend and its preprocessor
type RecognizerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ModelID      string        `mapstructure:"model_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxNewTokens int           `mapstructure:"max_new_tokens"`
	TokenizerDir string        `mapstructure:"tokenizer_dir"`
	ImageSize    int           `mapstructure:"image_size"`
	ImageMean    []float64     `mapstructure:"image_mean"`
	ImageStd     []float64     `mapstructure:"image_std"`
	// MaxPixels caps the declared width*height of an upload before it is decoded
	MaxPixels    int           `mapstructure:"max_pixels"`
}

// SolverConfig describes the solver model backend
type SolverConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	ModelID       string        `mapstructure:"model_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxNewTokens  int           `mapstructure:"max_new_tokens"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	TokenizerDir  string        `mapstructure:"tokenizer_dir"`
}

// LimitsConfig bounds concurrent inference
type LimitsConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxQueue      int           `mapstructure:"max_queue"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
}

// UploadConfig bounds image uploads
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// RedisConfig holds the optional recognition cache settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StartupConfig controls model acquisition at boot
type StartupConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// Load reads configuration from defaults, an optional YAML file, a .env
// file and FORMULA_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "_CONFIG"))
}

// Option customizes the viper instance before the config is unmarshalled
type Option func(v *viper.Viper) error

// WithFlag binds a command-line flag to a config key. A flag set on the
// command line wins over env vars and the config file.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return fmt.Errorf("no flag for config key %s", key)
		}
		return v.BindPFlag(key, flag)
	}
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string, opts ...Option) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 150*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("recognizer.base_url", "http://localhost:8501")
	v.SetDefault("recognizer.model_id", "breezedeus/pix2text-mfr")
	v.SetDefault("recognizer.timeout", 60*time.Second)
	v.SetDefault("recognizer.max_new_tokens", 256)
	v.SetDefault("recognizer.tokenizer_dir", "models/pix2text-mfr")
	v.SetDefault("recognizer.image_size", 384)
	v.SetDefault("recognizer.image_mean", []float64{0.5, 0.5, 0.5})
	v.SetDefault("recognizer.image_std", []float64{0.5, 0.5, 0.5})
	v.SetDefault("recognizer.max_pixels", 16_000_000)

	v.SetDefault("solver.enabled", true)
	v.SetDefault("solver.base_url", "http://localhost:8502")
	v.SetDefault("solver.model_id", "deepseek-ai/deepseek-math-7b-instruct")
	v.SetDefault("solver.timeout", 90*time.Second)
	v.SetDefault("solver.max_new_tokens", 512)
	v.SetDefault("solver.max_input_chars", 4096)
	v.SetDefault("solver.tokenizer_dir", "models/deepseek-math-7b-instruct")

	v.SetDefault("limits.max_concurrent", 4)
	v.SetDefault("limits.max_queue", 32)
	v.SetDefault("limits.queue_timeout", 30*time.Second)

	v.SetDefault("upload.max_bytes", 10<<20)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("startup.attempts", 5)
	v.SetDefault("startup.backoff", 2*time.Second)
}

// RequestBudget is the longest an inference request can take: the queue wait
// plus the slowest enabled model timeout
func (c *Config) RequestBudget() time.Duration {
	slowest := c.Recognizer.Timeout
	if c.Solver.Enabled && c.Solver.Timeout > slowest {
		slowest = c.Solver.Timeout
	}
	return c.Limits.QueueTimeout + slowest
}

// Validate rejects configurations the gateway cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Recognizer.ModelID == "" {
		return errors.New("recognizer.model_id is required")
	}
	if c.Recognizer.BaseURL == "" {
		return errors.New("recognizer.base_url is required")
	}
	if c.Recognizer.TokenizerDir == "" {
		return errors.New("recognizer.tokenizer_dir is required")
	}
	if c.Recognizer.MaxPixels <= 0 {
		return fmt.Errorf("invalid recognizer.max_pixels %d", c.Recognizer.MaxPixels)
	}
	if c.Recognizer.ImageSize <= 0 {
		return fmt.Errorf("invalid recognizer.image_size %d", c.Recognizer.ImageSize)
	}
	if len(c.Recognizer.ImageMean) != 3 || len(c.Recognizer.ImageStd) != 3 {
		return errors.New("recognizer.image_mean and recognizer.image_std need 3 values")
	}
	for _, s := range c.Recognizer.ImageStd {
		if s == 0 {
			return errors.New("recognizer.image_std must not contain zero")
		}
	}
	if c.Solver.Enabled && (c.Solver.BaseURL == "" || c.Solver.ModelID == "") {
		return errors.New("solver.base_url and solver.model_id are required when the solver is enabled")
	}
	if c.Solver.Enabled && c.Solver.TokenizerDir == "" {
		return errors.New("solver.tokenizer_dir is required when the solver is enabled")
	}
	if c.Limits.MaxConcurrent < 0 || c.Limits.MaxQueue < 0 {
		return errors.New("limits must not be negative")
	}
	if budget := c.RequestBudget(); c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= budget {
		return fmt.Errorf("server.write_timeout %s must exceed limits.queue_timeout plus the slowest model timeout (%s)",
			c.Server.WriteTimeout, budget)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("invalid upload.max_bytes %d", c.Upload.MaxBytes)
	}
	if c.Startup.Attempts < 1 {
		c.Startup.Attempts = 1
	}
	return nil
}
