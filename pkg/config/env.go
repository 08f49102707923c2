package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadEnvFiles layers .env files under the process environment. Variables
// already set in the environment win; .env.local wins over .env.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		err := godotenv.Load(name)
		if err == nil || os.IsNotExist(err) {
			continue
		}
		return fmt.Errorf("loading %s: %w", name, err)
	}
	return nil
}

// expandValue substitutes environment references in a string. ${VAR} and
// $VAR resolve to the variable's value; ${VAR:-fallback} uses the fallback
// when the variable is unset or empty.
func expandValue(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(ref string) string {
		if name, fallback, ok := strings.Cut(ref, ":-"); ok {
			if v := os.Getenv(name); v != "" {
				return v
			}
			return fallback
		}
		return os.Getenv(ref)
	})
}

// expandConfigData walks decoded YAML and expands environment references in
// every string. A string that a substitution changed is re-read as an int,
// float, or bool so numeric and boolean fields can come from the
// environment; untouched strings keep their type.
func expandConfigData(node any) any {
	switch v := node.(type) {
	case string:
		expanded := expandValue(v)
		if expanded == v {
			return v
		}
		if n, err := strconv.Atoi(expanded); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(expanded, 64); err == nil {
			return f
		}
		if strings.EqualFold(expanded, "true") {
			return true
		}
		if strings.EqualFold(expanded, "false") {
			return false
		}
		return expanded

	case map[string]any:
		for key, value := range v {
			v[key] = expandConfigData(value)
		}
		return v

	case []any:
		for i, item := range v {
			v[i] = expandConfigData(item)
		}
		return v

	default:
		return v
	}
}
