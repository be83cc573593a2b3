// Package env reads process environment variables with logging of the
// fallback path, the same small helper shape the teacher pulls in from its
// service-chassis dependency.
package env

import (
	"os"

	"github.com/rs/zerolog"
)

// GetVariableOrDefault returns the named environment variable, or def with
// a warning logged if it is unset.
func GetVariableOrDefault(log zerolog.Logger, name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	log.Warn().Str("variable", name).Str("default", def).Msg("environment variable not set, using default")
	return def
}

// GetVariableOrDie is for configuration with no sane default: boot fails
// loudly rather than silently running with an empty value.
func GetVariableOrDie(log zerolog.Logger, name string) string {
	v := os.Getenv(name)
	if v == "" {
		log.Fatal().Str("variable", name).Msg("required environment variable not set")
	}
	return v
}
