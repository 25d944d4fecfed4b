package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/relvacode/iso8601"
	"gopkg.in/yaml.v3"
)

// ParseDate parses a payload date string with iso8601, accepting both bare
// dates ("2024-01-01") and full timestamps, rather than a hand-rolled list
// of time.Parse layouts.
func ParseDate(s string) (time.Time, error) {
	t, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", s, err)
	}
	return t, nil
}

// LoadFile decodes a job payload from a JSON or YAML file (by extension),
// applies field defaults, and validates it.
func LoadFile(path string) (Payload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("read config %s: %w", path, err)
	}

	p := Defaults()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Payload{}, &ConfigError{Problems: []string{fmt.Sprintf("yaml decode: %v", err)}}
		}
	default:
		if err := json.Unmarshal(raw, &p); err != nil {
			return Payload{}, &ConfigError{Problems: []string{fmt.Sprintf("json decode: %v", err)}}
		}
	}

	p = ApplyDefaults(p)
	if err := Validate(p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// LoadEnv loads a .env file (if present) for ambient settings like DATA_DIR
// that are not part of any one job's payload. A missing .env file is not an
// error — it's the common case outside local development.
func LoadEnv(path string) {
	_ = godotenv.Load(path)
}

// DataDir returns the configured indicator-store root, defaulting to "data".
func DataDir() string {
	if v := os.Getenv("DATA_DIR"); v != "" {
		return v
	}
	return "data"
}
