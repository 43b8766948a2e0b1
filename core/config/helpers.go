package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		logrus.Warnf("[CONFIG] %s=%q is not an integer, using %d", key, v, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "1h") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, ok := parseDuration(v); ok {
		return d
	}
	logrus.Warnf("[CONFIG] %s=%q is not a duration, using %s", key, v, fallback)
	return fallback
}

func getEnvDurations(key string, fallback []time.Duration) []time.Duration {
	parts := getEnvList(key)
	if len(parts) == 0 {
		return fallback
	}
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, ok := parseDuration(p)
		if !ok {
			logrus.Warnf("[CONFIG] %s contains %q which is not a duration, using defaults", key, p)
			return fallback
		}
		out = append(out, d)
	}
	return out
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
