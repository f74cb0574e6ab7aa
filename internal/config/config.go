package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             string
	EngineURL        string
	PollInterval     time.Duration
	AutoTurnDelay    time.Duration
	HealthBackoffCap time.Duration
	EngineTimeout    time.Duration
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.EngineURL = getenv("ENGINE_URL", "http://localhost:9090")
	c.PollInterval = millis("POLL_INTERVAL_MS", 2000)
	c.AutoTurnDelay = millis("AUTO_TURN_DELAY_MS", 1000)
	c.HealthBackoffCap = millis("HEALTH_BACKOFF_CAP_MS", 10000)
	c.EngineTimeout = millis("ENGINE_TIMEOUT_MS", 8000)
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func millis(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return time.Duration(def) * time.Millisecond
}
