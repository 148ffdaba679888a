package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvironment returns the current environment (development, staging,
// production) before viper loads. Used for the config default so the
// environment can steer where config files are looked up.
func GetEnvironment() string {
	env := GetEnv("POS_SERVER_ENVIRONMENT", EnvDevelopment)
	return strings.ToLower(env)
}
