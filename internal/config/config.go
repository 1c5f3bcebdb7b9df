// Package config reads the qpipe settings from the environment and an optional .env file.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// ModeProduction logs at info level.
	ModeProduction = "production"
	// ModeDevelopment logs at trace level.
	ModeDevelopment = "development"
)

var (
	// ErrInvalidMode is returned when QPIPE_MODE is neither production nor development.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrInvalidLogMode is returned when QPIPE_LOG_MODE is neither TEXT nor JSON.
	ErrInvalidLogMode = errors.New("invalid log mode")
)

// Config holds the process settings.
type Config struct {
	Mode          string `env:"QPIPE_MODE" envDefault:"production"`
	Root          string `env:"QPIPE_ROOT" envDefault:"."`
	Log           string `env:"QPIPE_LOG"`
	LogMode       string `env:"QPIPE_LOG_MODE" envDefault:"TEXT"`
	LogMaxSize    int    `env:"QPIPE_LOG_MAX_SIZE" envDefault:"50"`
	LogMaxBackups int    `env:"QPIPE_LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAge     int    `env:"QPIPE_LOG_MAX_AGE" envDefault:"28"`
	LogLocalTime  bool   `env:"QPIPE_LOG_LOCAL_TIME" envDefault:"true"`
	Concurrency   int    `env:"QPIPE_CONCURRENCY" envDefault:"4"`
	LLM           LLM
	Embedding     Embedding
	Store         Store
}

// LLM configures the language model used by llm modules.
// An empty API key and base URL selects the offline mock.
type LLM struct {
	BaseURL     string  `env:"QPIPE_LLM_BASE_URL"`
	APIKey      string  `env:"QPIPE_LLM_API_KEY"`
	Model       string  `env:"QPIPE_LLM_MODEL" envDefault:"gpt-4o-mini"`
	Temperature float64 `env:"QPIPE_LLM_TEMPERATURE" envDefault:"0.1"`
	MaxTokens   int     `env:"QPIPE_LLM_MAX_TOKENS" envDefault:"512"`
}

// Embedding configures the embedder. Provider is "hash" or "openai".
type Embedding struct {
	Provider string `env:"QPIPE_EMBED_PROVIDER" envDefault:"hash"`
	BaseURL  string `env:"QPIPE_EMBED_BASE_URL"`
	APIKey   string `env:"QPIPE_EMBED_API_KEY"`
	Model    string `env:"QPIPE_EMBED_MODEL" envDefault:"text-embedding-3-small"`
	Dim      int    `env:"QPIPE_EMBED_DIM" envDefault:"256"`
}

// Store configures the sqlite vector and chat stores. Both live in the same database file.
type Store struct {
	Path      string `env:"QPIPE_SQLITE_PATH" envDefault:"qpipe.db"`
	Table     string `env:"QPIPE_SQLITE_TABLE" envDefault:"nodes"`
	ChatTable string `env:"QPIPE_CHAT_TABLE" envDefault:"chat_messages"`
	TopK      int    `env:"QPIPE_TOP_K" envDefault:"2"`
}

// Load reads the config from the process environment. When envfile is set, its
// values override the environment.
func Load(envfile string) (*Config, error) {
	environ := environment()

	if envfile != "" {
		file, err := filepath.Abs(envfile)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to resolve %s", envfile)
		}

		values, err := godotenv.Read(file)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read %s", file)
		}

		for k, v := range values {
			environ[k] = v
		}
	}

	return LoadFrom(environ)
}

// LoadFrom reads the config from environ instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg, env.Options{Environment: environ})
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse config")
	}

	err = cfg.check()
	if err != nil {
		return nil, err
	}

	cfg.Root, err = filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to resolve root %s", cfg.Root)
	}

	if cfg.Log != "" && !filepath.IsAbs(cfg.Log) {
		cfg.Log = filepath.Join(cfg.Root, cfg.Log)
	}

	if !filepath.IsAbs(cfg.Store.Path) && cfg.Store.Path != ":memory:" {
		cfg.Store.Path = filepath.Join(cfg.Root, cfg.Store.Path)
	}

	return cfg, nil
}

func (c *Config) check() error {
	switch c.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		return errors.Wrapf(ErrInvalidMode, "%q", c.Mode)
	}

	c.LogMode = strings.ToUpper(c.LogMode)
	switch c.LogMode {
	case "TEXT", "JSON":
	default:
		return errors.Wrapf(ErrInvalidLogMode, "%q", c.LogMode)
	}

	if c.Concurrency < 1 {
		c.Concurrency = 1
	}

	return nil
}

// SetupLog configures the process logger for the mode. With a log file the output
// goes to a rotating file; the returned closer must be closed on exit.
func (c *Config) SetupLog() (io.Closer, error) {
	switch c.Mode {
	case ModeDevelopment:
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	log.SetFormatter(log.TEXT)
	if c.LogMode == "JSON" {
		log.SetFormatter(log.JSON)
	}

	if c.Log == "" {
		log.SetOutput(os.Stderr)

		return nopCloser{}, nil
	}

	err := os.MkdirAll(filepath.Dir(c.Log), 0o755) //nolint:mnd
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create log directory for %s", c.Log)
	}

	output := &lumberjack.Logger{
		Filename:   c.Log,
		MaxSize:    c.LogMaxSize, // megabytes
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge, // days
		LocalTime:  c.LogLocalTime,
	}
	log.SetOutput(output)

	return output, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func environment() map[string]string {
	res := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			res[k] = v
		}
	}

	return res
}
