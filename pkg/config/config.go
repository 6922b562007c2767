package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Configuration defines the structure for storing application configuration
type Configuration struct {
	// HTTP server configuration
	HTTPPort          int
	HTTPEnableMetrics bool

	// Live AI voice session configuration
	LiveAPIURL   string
	LiveAPIKey   string
	LiveVoice    string
	LiveModel    string

	// Report generation (LLM) configuration
	ReportAPIKey  string
	ReportModel   string
	ReportBaseURL string

	// Speech-to-text configuration
	SupportedVendors []string
	DefaultVendor    string
	GoogleAPIKey     string
	GoogleCredsFile  string
	STTLanguage      string

	// Analysis configuration
	FrameInterval         time.Duration
	DetectorRetryInterval time.Duration
	MediaAcquireTimeout   time.Duration

	// Persistence
	SQLitePath    string
	RedisAddress  string
	RedisPassword string
	RedisDatabase int
	HistoryTTL    time.Duration

	// Auth
	JWTSecret   string
	TokenExpiry time.Duration

	// AMQP configuration
	AMQPUrl       string
	AMQPQueueName string

	// Logging
	LogLevel logrus.Level
}

// LoadConfig loads the application configuration from environment variables.
// A missing .env file is not fatal; plain environment variables still apply.
func LoadConfig(logger *logrus.Logger) (*Configuration, error) {
	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Debug("No .env file loaded, using environment only")
	}

	config := &Configuration{}

	config.HTTPPort = intFromEnv(logger, "HTTP_PORT", 8090)
	config.HTTPEnableMetrics = os.Getenv("HTTP_ENABLE_METRICS") != "false"

	config.LiveAPIURL = os.Getenv("LIVE_API_URL")
	config.LiveAPIKey = os.Getenv("LIVE_API_KEY")
	config.LiveVoice = stringFromEnv("LIVE_VOICE", "Aoede")
	config.LiveModel = stringFromEnv("LIVE_MODEL", "realtime-default")

	config.ReportAPIKey = os.Getenv("REPORT_API_KEY")
	config.ReportModel = stringFromEnv("REPORT_MODEL", "gpt-4o-mini")
	config.ReportBaseURL = os.Getenv("REPORT_BASE_URL")

	vendorsEnv := os.Getenv("SUPPORTED_VENDORS")
	if vendorsEnv == "" {
		config.SupportedVendors = []string{"google", "mock"}
		logger.Info("No SUPPORTED_VENDORS specified, defaulting to google, mock")
	} else {
		config.SupportedVendors = strings.Split(vendorsEnv, ",")
	}
	config.DefaultVendor = stringFromEnv("DEFAULT_SPEECH_VENDOR", "google")
	config.GoogleAPIKey = os.Getenv("GOOGLE_STT_API_KEY")
	config.GoogleCredsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	config.STTLanguage = stringFromEnv("STT_LANGUAGE", "en-US")

	config.FrameInterval = durationFromEnv(logger, "ANALYSIS_FRAME_INTERVAL", 16*time.Millisecond)
	config.DetectorRetryInterval = durationFromEnv(logger, "DETECTOR_RETRY_INTERVAL", 250*time.Millisecond)
	config.MediaAcquireTimeout = durationFromEnv(logger, "MEDIA_ACQUIRE_TIMEOUT", 15*time.Second)

	config.SQLitePath = stringFromEnv("SQLITE_PATH", "./hireprep.db")
	config.RedisAddress = stringFromEnv("REDIS_ADDRESS", "localhost:6379")
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")
	config.RedisDatabase = intFromEnv(logger, "REDIS_DATABASE", 0)
	config.HistoryTTL = durationFromEnv(logger, "HISTORY_TTL", 30*24*time.Hour)

	config.JWTSecret = os.Getenv("JWT_SECRET")
	config.TokenExpiry = durationFromEnv(logger, "TOKEN_EXPIRY", 24*time.Hour)

	config.AMQPUrl = os.Getenv("AMQP_URL")
	config.AMQPQueueName = stringFromEnv("AMQP_QUEUE_NAME", "interview_assessments")

	levelStr := stringFromEnv("LOG_LEVEL", "info")
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		logger.WithField("log_level", levelStr).Warn("Invalid LOG_LEVEL, defaulting to info")
		level = logrus.InfoLevel
	}
	config.LogLevel = level

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for inconsistent values
func (c *Configuration) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("ANALYSIS_FRAME_INTERVAL must be positive")
	}
	if c.DetectorRetryInterval < 50*time.Millisecond {
		return fmt.Errorf("DETECTOR_RETRY_INTERVAL must be at least 50ms")
	}
	return nil
}

// AMQPEnabled reports whether assessment events should be published
func (c *Configuration) AMQPEnabled() bool {
	return c.AMQPUrl != "" && c.AMQPQueueName != ""
}

func stringFromEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(logger *logrus.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func durationFromEnv(logger *logrus.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid duration in environment, using default")
		return fallback
	}
	return d
}
