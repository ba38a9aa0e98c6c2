package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tracking TrackingConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=delivery_tracking"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// KafkaConfig enables the tracking-event firehose when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_TOPIC, default=tracking-events"`
}

// TrackingConfig tunes the tracking core. The proximity radii default to the
// values the courier apps were built around (500 m / 50 m) but are
// per-deployment knobs: dense urban zones want tighter radii than rural ones.
type TrackingConfig struct {
	NearRadiusM    float64       `env:"TRACKING_NEAR_RADIUS_M,    default=500"`
	ArrivedRadiusM float64       `env:"TRACKING_ARRIVED_RADIUS_M, default=50"`
	MaxClockSkew   time.Duration `env:"TRACKING_MAX_CLOCK_SKEW,   default=5m"`
	HistoryLimit   int           `env:"TRACKING_HISTORY_LIMIT,    default=50"`

	EventLogLimit int `env:"TRACKING_EVENT_LOG_LIMIT, default=200"`
	SessionBuffer int `env:"TRACKING_SESSION_BUFFER,  default=64"`

	DefaultSpeedKmh         float64       `env:"TRACKING_DEFAULT_SPEED_KMH, default=25"`
	MaxSpeedKmh             float64       `env:"TRACKING_MAX_SPEED_KMH,     default=100"`
	SpeedWindow             int           `env:"TRACKING_SPEED_WINDOW,      default=10"`
	ETAHysteresis           time.Duration `env:"TRACKING_ETA_HYSTERESIS,    default=60s"`
	ETAConfidenceHysteresis int           `env:"TRACKING_ETA_CONFIDENCE_HYSTERESIS, default=5"`

	BatchWorkers int `env:"TRACKING_BATCH_WORKERS, default=8"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
