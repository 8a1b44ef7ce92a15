package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "GOANALYZE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Windowing WindowingConfig `mapstructure:"windowing"`
	Inference InferenceConfig `mapstructure:"inference"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" validate:"gte=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// MaxUploadBytes is zero when uploads are unbounded.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type WindowingConfig struct {
	SampleRate        int     `mapstructure:"sample_rate" validate:"gt=0"`
	PrimarySeconds    float64 `mapstructure:"primary_seconds" validate:"gt=0"`
	PrimaryMinSeconds float64 `mapstructure:"primary_min_seconds" validate:"gte=0,ltefield=PrimarySeconds"`
	SubSeconds        float64 `mapstructure:"sub_seconds" validate:"gt=0,ltefield=PrimarySeconds"`
	SubMinSeconds     float64 `mapstructure:"sub_min_seconds" validate:"gte=0,ltefield=SubSeconds"`
	TopEvents         int     `mapstructure:"top_events" validate:"gt=0"`
	MaxAudioSeconds   float64 `mapstructure:"max_audio_seconds" validate:"gte=0"`
}

type InferenceConfig struct {
	Backend      string        `mapstructure:"backend" validate:"oneof=stub http"`
	Device       string        `mapstructure:"device" validate:"required"`
	LabelsFile   string        `mapstructure:"labels_file"`
	Retries      int           `mapstructure:"retries" validate:"gte=0"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	Emotion      ServiceConfig `mapstructure:"emotion"`
	Tagger       ServiceConfig `mapstructure:"tagger"`
}

type ServiceConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type StorageConfig struct {
	TempDir string `mapstructure:"temp_dir"`
}

type TelemetryConfig struct {
	ServiceName  string        `mapstructure:"service_name" validate:"required"`
	OTLPEndpoint string        `mapstructure:"otlp_endpoint"`
	Insecure     bool          `mapstructure:"insecure"`
	Interval     time.Duration `mapstructure:"interval" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_mb", 512)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("windowing.sample_rate", 16000)
	v.SetDefault("windowing.primary_seconds", 10.0)
	v.SetDefault("windowing.primary_min_seconds", 1.0)
	v.SetDefault("windowing.sub_seconds", 5.0)
	v.SetDefault("windowing.sub_min_seconds", 0.5)
	v.SetDefault("windowing.top_events", 20)
	v.SetDefault("windowing.max_audio_seconds", 0.0)

	v.SetDefault("inference.backend", "stub")
	v.SetDefault("inference.device", "cpu")
	v.SetDefault("inference.labels_file", "")
	v.SetDefault("inference.retries", 1)
	v.SetDefault("inference.retry_backoff", 500*time.Millisecond)
	v.SetDefault("inference.emotion.url", "")
	v.SetDefault("inference.emotion.timeout", 120*time.Second)
	v.SetDefault("inference.tagger.url", "")
	v.SetDefault("inference.tagger.timeout", 120*time.Second)

	v.SetDefault("storage.temp_dir", "")

	v.SetDefault("telemetry.service_name", "goanalyze")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.interval", 15*time.Second)
}

// Load reads defaults, an optional YAML file at path, a .env file in the
// working directory, and GOANALYZE_* environment overrides, in increasing
// order of precedence. LOG_LEVEL is accepted for log.level.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("log.level", envPrefix+"_LOG_LEVEL", "LOG_LEVEL"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks field constraints and the combinations they cannot express.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q %s", fe.Namespace(), fe.Tag(), fe.Param()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if c.Inference.Backend == "http" {
		if c.Inference.Emotion.URL == "" || c.Inference.Tagger.URL == "" {
			return errors.New("invalid config: inference.emotion.url and inference.tagger.url are required for the http backend")
		}
	}
	return nil
}
