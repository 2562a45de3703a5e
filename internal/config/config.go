package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Grading dispatch modes.
const (
	GradingModeInProcess = "inprocess"
	GradingModeRedis     = "redis"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventSubjectPrefix     string
	JWTSecret              string
	StorageRoot            string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MaxImages              int
	MaxUploadMB            int
	HomeworkFileName       string
	AllowDeleteRejected    bool
	ImageMaxDimension      int
	SubmitRateLimit        int
	GradingMode            string
	GradingWorkers         int
	GradingTimeout         time.Duration
	GradingQueueKey        string
	AIProvider             string
	AIModel                string
	AIBaseURL              string
	OpenAIAPIKey           string
	VisibilitySweep        string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Classroom API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.subject_prefix", "gema.classroom")
	v.SetDefault("storage.root", "./data")
	v.SetDefault("cloudinary.folder", "gema/submissions")
	v.SetDefault("submission.max_images", 10)
	v.SetDefault("submission.max_upload_mb", 25)
	v.SetDefault("submission.homework_file_name", "homework.pdf")
	v.SetDefault("submission.allow_delete_rejected", false)
	v.SetDefault("submission.rate_limit_per_minute", 6)
	v.SetDefault("image.max_dimension", 2000)
	v.SetDefault("grading.mode", GradingModeInProcess)
	v.SetDefault("grading.workers", 4)
	v.SetDefault("grading.timeout", "3m")
	v.SetDefault("grading.queue_key", "gema:grading:jobs")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("visibility.sweep_schedule", "*/5 * * * *")

	timeout, err := time.ParseDuration(v.GetString("grading.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid grading timeout: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventSubjectPrefix:     v.GetString("events.subject_prefix"),
		JWTSecret:              v.GetString("jwt.secret"),
		StorageRoot:            v.GetString("storage.root"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MaxImages:              v.GetInt("submission.max_images"),
		MaxUploadMB:            v.GetInt("submission.max_upload_mb"),
		HomeworkFileName:       strings.TrimSpace(v.GetString("submission.homework_file_name")),
		AllowDeleteRejected:    v.GetBool("submission.allow_delete_rejected"),
		ImageMaxDimension:      v.GetInt("image.max_dimension"),
		SubmitRateLimit:        v.GetInt("submission.rate_limit_per_minute"),
		GradingMode:            strings.ToLower(strings.TrimSpace(v.GetString("grading.mode"))),
		GradingWorkers:         v.GetInt("grading.workers"),
		GradingTimeout:         timeout,
		GradingQueueKey:        v.GetString("grading.queue_key"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		AIModel:                v.GetString("ai.model"),
		AIBaseURL:              v.GetString("ai.base_url"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		VisibilitySweep:        strings.TrimSpace(v.GetString("visibility.sweep_schedule")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.GradingMode {
	case GradingModeInProcess:
	case GradingModeRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("grading mode redis requires GEMA_REDIS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown grading mode %q", cfg.GradingMode)
	}

	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 10
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 25
	}

	if cfg.GradingWorkers <= 0 {
		cfg.GradingWorkers = 4
	}

	return cfg, nil
}
