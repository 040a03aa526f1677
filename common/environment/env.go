// Package environment reads typed configuration values from environment
// variables. The gateway binaries use it directly; the server proper layers
// YAML and env parsing in its config package instead.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// String reports the raw value and whether the variable was set at all,
// distinguishing "unset" from "set to empty".
func String(name string) (string, bool) {
	return os.LookupEnv(name)
}

// StringOr returns the variable's value, or defaultValue when unset or
// empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the variable's value, or an error naming the
// missing variable so startup failures are self-explanatory.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the variable with strconv.ParseBool semantics. Unset, empty,
// and unparsable values all yield defaultValue.
func BoolOr(name string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(name)); err == nil {
		return b
	}
	return defaultValue
}

// IntOr parses the variable as a decimal integer, falling back to
// defaultValue when unset or unparsable.
func IntOr(name string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return n
	}
	return defaultValue
}

// DurationOr parses the variable as a time.Duration ("30s", "5m"), falling
// back to defaultValue when unset or unparsable.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(name)); err == nil {
		return d
	}
	return defaultValue
}

// StringSliceOr splits the variable on commas, trimming whitespace and
// dropping empty elements. An unset variable or one that trims away to
// nothing yields defaultValue.
func StringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
