package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	ScanBaseURL string

	QrTokenTTL time.Duration

	// Devices that have not pushed anything for OfflineAfter are marked
	// offline by the background sweep.
	OfflineAfter  time.Duration
	SweepInterval time.Duration

	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Provider     string

	RateLimitPerMinute   int
	RateLimitBurst       int
	DeviceLimitPerMinute int
	DeviceLimitBurst     int
}

func Load() Config {
	port := os.Getenv("ATTENDANCE_PORT")
	if port == "" {
		port = "8090"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		ScanBaseURL: os.Getenv("ATTENDANCE_SCAN_BASE_URL"),

		QrTokenTTL: readDurationSeconds("ATTENDANCE_QR_TTL_SECONDS", 60),

		OfflineAfter:  readDurationSeconds("ATTENDANCE_OFFLINE_AFTER_SECONDS", 300),
		SweepInterval: readDurationSeconds("ATTENDANCE_SWEEP_SECONDS", 60),

		PollInterval: readDurationSeconds("ATTENDANCE_POLL_SECONDS", 2),
		BatchSize:    readInt("ATTENDANCE_BATCH_SIZE", 50),
		MaxAttempts:  readInt("ATTENDANCE_MAX_ATTEMPTS", 3),
		Provider:     os.Getenv("ATTENDANCE_NOTIFY_PROVIDER"),

		RateLimitPerMinute:   readInt("ATTENDANCE_RATE_LIMIT_PER_MINUTE", 300),
		RateLimitBurst:       readInt("ATTENDANCE_RATE_LIMIT_BURST", 60),
		DeviceLimitPerMinute: readInt("ATTENDANCE_DEVICE_LIMIT_PER_MINUTE", 120),
		DeviceLimitBurst:     readInt("ATTENDANCE_DEVICE_LIMIT_BURST", 30),
	}
}

// readDurationSeconds never returns zero: the values it feeds end up in
// time.NewTicker, which panics on a non-positive interval.
func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
