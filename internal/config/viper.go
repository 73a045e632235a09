// Package config centralizes Viper configuration keys and helpers for the
// ctxkeep CLI. Precedence is flags over environment over config file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ctxkeep/ctxkeep/pkg/watch"
)

// Configuration keys. Environment variables use the CTXKEEP_ prefix with
// dots replaced by underscores, e.g. CTXKEEP_CONTEXT_DIR.
const (
	KeyRoot       = "root"
	KeyContextDir = "context_dir"
	KeyDebounce   = "debounce"
	KeyLogLevel   = "log.level"
	KeyLogFormat  = "log.format"
	KeyOutput     = "output"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "CTXKEEP"

// Init wires Viper defaults and environment binding. Called once from the
// root command.
func Init() {
	viper.SetDefault(KeyRoot, ".")
	viper.SetDefault(KeyContextDir, ".ctxkeep")
	viper.SetDefault(KeyDebounce, watch.DefaultDebounce)
	viper.SetDefault(KeyLogLevel, "info")
	viper.SetDefault(KeyOutput, "table")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// GetString reads a string value, checking the raw OS environment as a
// fallback for unprefixed variables.
func GetString(key string) string {
	if value := viper.GetString(key); value != "" {
		return value
	}
	return os.Getenv(key)
}

// Debounce returns the configured watch quiet window.
func Debounce() time.Duration {
	d := viper.GetDuration(KeyDebounce)
	if d <= 0 {
		return watch.DefaultDebounce
	}
	return d
}
