// Package config provides configuration helpers for go-autocar commands.
//
// Values come from the process environment, optionally seeded from a .env
// file. Command-line flags are layered on top by each command.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Prefix is prepended to every key looked up through this package.
const Prefix = "AUTOCAR_"

// LoadDotEnv loads the given files (".env" when none) into the environment
// without overriding variables that are already set. Missing files are not
// an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(Prefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// String returns AUTOCAR_<key>, or def if unset.
func String(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

// Int returns AUTOCAR_<key> as an int, or def if unset or invalid.
func Int(key string, def int) int {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns AUTOCAR_<key> as a float64, or def if unset or invalid.
func Float(key string, def float64) float64 {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns AUTOCAR_<key> as a bool, or def if unset or invalid.
func Bool(key string, def bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Duration returns AUTOCAR_<key> parsed by time.ParseDuration, or def.
func Duration(key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Secret reads an unprefixed provider key such as GOOGLE_API_KEY.
// Vendor SDKs document those names, so they are not namespaced.
func Secret(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
