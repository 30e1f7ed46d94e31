package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// Deposit policy: deposit = max(minimum * DepositRate, DepositFloor).
	DepositRate  float64
	DepositFloor float64
	// Smallest minimum bid capacity a reservation may be created for.
	MinimumAmountFloor float64

	MinDuration time.Duration
	MaxDuration time.Duration

	SweepInterval time.Duration
	SweepBatch    int

	// TTL of the per-(user,auction) bid submission lock.
	BidLockTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DepositRate:        envFloat("DEPOSIT_RATE", 0.10),
		DepositFloor:       envFloat("DEPOSIT_FLOOR", 50),
		MinimumAmountFloor: envFloat("MINIMUM_AMOUNT_FLOOR", 10),
		MinDuration:        envDuration("RESERVATION_MIN_DURATION", time.Hour),
		MaxDuration:        envDuration("RESERVATION_MAX_DURATION", 168*time.Hour),
		SweepInterval:      envDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepBatch:         envInt("SWEEP_BATCH", 100),
		BidLockTTL:         envDuration("BID_LOCK_TTL", 10*time.Second),
	}, nil
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
