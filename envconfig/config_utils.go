// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint/Uint64: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// NoShuffle deaktiviert das Mischen aller Reader unabhaengig von der Pipeline-Konfiguration
var NoShuffle = Bool("ROCAL_NO_SHUFFLE")

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"ROCAL_DEBUG":          {"ROCAL_DEBUG", LogLevel(), "Show additional debug information (e.g. ROCAL_DEBUG=1)"},
		"ROCAL_HOST":           {"ROCAL_HOST", Host(), "Listen address of the status server (default 127.0.0.1:11525)"},
		"ROCAL_NUM_THREADS":    {"ROCAL_NUM_THREADS", NumThreads(), "Decode threads per loader (0 = derive from CPU count)"},
		"ROCAL_PREFETCH_DEPTH": {"ROCAL_PREFETCH_DEPTH", PrefetchDepth(), "Number of prefetched batches (default 3, minimum 2)"},
		"ROCAL_SEED":           {"ROCAL_SEED", Seed(), "Seed for randomization parameters (0 = time based)"},
		"ROCAL_SHUFFLE_SEED":   {"ROCAL_SHUFFLE_SEED", ShuffleSeed(), "Seed for reader shuffling (0 = derived from ROCAL_SEED)"},
		"ROCAL_DECODER":        {"ROCAL_DECODER", Decoder(), "Default decoder type (image, fused_crop)"},
		"ROCAL_NO_SHUFFLE":     {"ROCAL_NO_SHUFFLE", NoShuffle(), "Disable shuffling in every reader"},
		"ROCAL_ORIGINS":        {"ROCAL_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins for the status server"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
