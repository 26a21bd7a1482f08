// Package config loads application settings from the environment and an
// optional .env file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Unit systems.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// DefaultEnvFile is read when ENV_FILE is unset.
const DefaultEnvFile = ".env"

// ErrMissingBotToken is returned when the bot is started without a token.
var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Config holds all application settings.
type Config struct {
	WindyAPIKey       string
	OpenWeatherAPIKey string
	DefaultCity       string `validate:"required"`
	Units             string `validate:"oneof=metric imperial"`
	TelegramBotToken  string
	OutputDir         string `validate:"required"`
	FontPath          string

	DetectionWindowMinutes int `validate:"gte=0"`
	SeriesStepMinutes      int `validate:"gt=0"`

	NominatimUserAgent string `validate:"required"`
	BotConcurrency     int    `validate:"gte=1,lte=64"`

	// ProviderMaxRetries is how often a failed upstream call is retried.
	ProviderMaxRetries int `validate:"gte=0,lte=5"`

	Port         string `validate:"required,numeric"`
	Environment  string
	LogLevel     string
	OTelEnabled  bool
	OTLPEndpoint string

	// RequireTLS rejects API calls a proxy forwarded over plain HTTP.
	RequireTLS bool
}

// Load reads the env file named by ENV_FILE (default .env) into unset
// environment keys, then builds and validates the configuration.
// A missing env file is not an error.
func Load() (Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if err := LoadEnvFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv()
}

// LoadEnvFile sets keys from an env file without overriding keys that
// already have a non-empty value. A leading UTF-8 BOM is ignored.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading env file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	values, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("parsing env file %s: %w", path, err)
	}

	for key, value := range values {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return nil
}

// FromEnv builds the configuration from the process environment.
func FromEnv() (Config, error) {
	window, err := intFromEnv("DETECTION_WINDOW_MINUTES", 180)
	if err != nil {
		return Config{}, err
	}
	step, err := intFromEnv("SERIES_STEP_MINUTES", 60)
	if err != nil {
		return Config{}, err
	}
	concurrency, err := intFromEnv("BOT_CONCURRENCY", 4)
	if err != nil {
		return Config{}, err
	}
	retries, err := intFromEnv("PROVIDER_MAX_RETRIES", 0)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		WindyAPIKey:            strings.TrimSpace(os.Getenv("WINDY_API_KEY")),
		OpenWeatherAPIKey:      strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")),
		DefaultCity:            getEnvOrDefault("DEFAULT_CITY", "Chennai"),
		Units:                  NormalizeUnits(os.Getenv("UNITS")),
		TelegramBotToken:       strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		OutputDir:              getEnvOrDefault("OUTPUT_DIR", "outputs"),
		FontPath:               getEnvOrDefault("FONT_PATH", "arial.ttf"),
		DetectionWindowMinutes: window,
		SeriesStepMinutes:      step,
		NominatimUserAgent:     getEnvOrDefault("NOMINATIM_USER_AGENT", "WeatherDiffusers/1.0 (educational)"),
		BotConcurrency:         concurrency,
		ProviderMaxRetries:     retries,
		Port:                   getEnvOrDefault("APP_PORT", "8080"),
		Environment:            getEnvOrDefault("APP_ENV", "development"),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		OTelEnabled:            os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:           getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		RequireTLS:             os.Getenv("REQUIRE_TLS") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireBotToken returns ErrMissingBotToken when no bot token is configured.
func (c Config) RequireBotToken() error {
	if c.TelegramBotToken == "" {
		return ErrMissingBotToken
	}
	return nil
}

// HasWindy reports whether the primary provider is configured.
func (c Config) HasWindy() bool {
	return c.WindyAPIKey != ""
}

// HasOpenWeather reports whether the secondary provider is configured.
func (c Config) HasOpenWeather() bool {
	return c.OpenWeatherAPIKey != ""
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// NormalizeUnits coerces anything but "metric" or "imperial" to metric.
func NormalizeUnits(units string) string {
	u := strings.ToLower(strings.TrimSpace(units))
	if u == UnitsImperial {
		return UnitsImperial
	}
	return UnitsMetric
}

func intFromEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
