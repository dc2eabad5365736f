package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the value of an environment variable or a default value if not set
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value if not set
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value if not set
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv returns the duration value of an environment variable or a default value if not set
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// MustGetEnv returns the value of an environment variable or panics if not set
func MustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	panic("Required environment variable " + key + " is not set")
}

// AlertDefaults holds the process-wide alert delivery configuration.
// Every field can be overridden per monitor at registration time.
type AlertDefaults struct {
	EmailAPIURL string
	EmailAPIKey string
	EmailTo     string
	EmailFrom   string
	WebhookURL  string
}

// GetAlertDefaults reads the alert delivery configuration from the environment.
// Read at dispatch time so operators can rotate credentials without a restart.
func GetAlertDefaults() AlertDefaults {
	return AlertDefaults{
		EmailAPIURL: GetEnv("EMAIL_API_URL", ""),
		EmailAPIKey: GetEnv("EMAIL_API_KEY", ""),
		EmailTo:     GetEnv("ALERT_EMAIL_TO", ""),
		EmailFrom:   GetEnv("ALERT_EMAIL_FROM", ""),
		WebhookURL:  GetEnv("ALERT_WEBHOOK_URL", ""),
	}
}
