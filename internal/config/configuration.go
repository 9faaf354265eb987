package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Job queue behavior. Attempt ceilings and visibility windows are
	// deliberately tunable; see the queue package for semantics.
	QueueMaxReceives       int `mapstructure:"QUEUE_MAX_RECEIVES" validate:"min=1"`
	QueueVisibilitySeconds int `mapstructure:"QUEUE_VISIBILITY_SECONDS" validate:"min=1"`

	// Transcode orchestration
	TranscodeWorkers        int    `mapstructure:"TRANSCODE_WORKERS" validate:"min=1"`
	TranscodeTimeoutMinutes int    `mapstructure:"TRANSCODE_TIMEOUT_MINUTES" validate:"min=1"`
	TranscoderURL           string `mapstructure:"TRANSCODER_URL"`

	// Object storage layout
	UploadBucket string `mapstructure:"UPLOAD_BUCKET" validate:"required"`
	UploadPrefix string `mapstructure:"UPLOAD_PREFIX"`
	OutputPrefix string `mapstructure:"OUTPUT_PREFIX"`
	CDNBaseURL   string `mapstructure:"CDN_BASE_URL"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
	slog.Info("Environment variables bound", "config", c)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("QUEUE_MAX_RECEIVES", 3)
	viper.SetDefault("QUEUE_VISIBILITY_SECONDS", 60)
	viper.SetDefault("TRANSCODE_WORKERS", 2)
	viper.SetDefault("TRANSCODE_TIMEOUT_MINUTES", 15)
	viper.SetDefault("UPLOAD_PREFIX", "uploads/")
	viper.SetDefault("OUTPUT_PREFIX", "renditions/")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
