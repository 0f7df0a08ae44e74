// Package env contains utilities to manage environemnt variables
package env

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Simple helper function to read an environment variable or return a default value
func GetEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// Simple helper function to read an environment variable into an integer or return a default value
func GetEnvAsInt(key string, defaultVal int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// GetEnvAsSeconds reads an environment variable as a count of seconds,
// returning it as a time.Duration, or a default value if unset/invalid.
func GetEnvAsSeconds(key string, defaultVal time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Second
	}
	return defaultVal
}

// GetEnvAsBool reads an environment variable as a boolean or returns a
// default value if unset/invalid.
func GetEnvAsBool(key string, defaultVal bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// MustGetEnv reads a required environment variable, returning an error if
// it is unset, for callers that must fail fast at startup.
func MustGetEnv(key string) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return "", fmt.Errorf("environment variable %s must be set", key)
	}
	return value, nil
}
