package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	SinkPort       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresMaxOpen  int
	PostgresMaxIdle  int
	PostgresConnLife time.Duration
	SlowQuery        time.Duration
	ConnectTimeout   time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	KVNamespace   string

	// Kafka
	KafkaBrokers   []string
	KafkaGroupID   string
	ResponsesTopic string
	LogsTopic      string

	// Study download
	StudyBaseURL         string
	StudyDownloadTimeout time.Duration
	StudyOAuthTokenURL   string
	StudyOAuthClientID   string
	StudyOAuthSecret     string
	MediaDir             string

	// Scheduling
	NotificationLimit int
	PVTTickInterval   time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		SinkPort:       getEnv("SINK_PORT", "8090"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 40),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "studyrunner"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "studyrunner"),
		PostgresDB:       getEnv("POSTGRES_DB", "studyrunner"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresMaxOpen:  getIntEnv("POSTGRES_MAX_OPEN_CONNS", 10),
		PostgresMaxIdle:  getIntEnv("POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnLife: getDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		SlowQuery:        getDuration("SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		ConnectTimeout:   getDuration("CONNECT_TIMEOUT", 5*time.Second),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		KVNamespace:   getEnv("KV_NAMESPACE", "studyrunner"),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "studyrunner-sink"),
		ResponsesTopic: getEnv("RESPONSES_TOPIC", "study-responses"),
		LogsTopic:      getEnv("LOGS_TOPIC", "study-logs"),

		StudyBaseURL:         getEnv("STUDY_BASE_URL", "https://tuspl22-momentum.srv.mwn.de/api/v1/studies/"),
		StudyDownloadTimeout: getDuration("STUDY_DOWNLOAD_TIMEOUT", 15*time.Second),
		StudyOAuthTokenURL:   getEnv("STUDY_OAUTH_TOKEN_URL", ""),
		StudyOAuthClientID:   getEnv("STUDY_OAUTH_CLIENT_ID", ""),
		StudyOAuthSecret:     getEnv("STUDY_OAUTH_CLIENT_SECRET", ""),
		MediaDir:             getEnv("MEDIA_DIR", "./media"),

		NotificationLimit: getIntEnv("NOTIFICATION_LIMIT", 30),
		PVTTickInterval:   getDuration("PVT_TICK_INTERVAL", 5*time.Millisecond),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
