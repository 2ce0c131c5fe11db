package envconfig

import (
	"log/slog"
	"testing"
)

func TestHost(t *testing.T) {
	cases := map[string]string{
		"":                   "127.0.0.1:11525",
		"0.0.0.0":            "0.0.0.0:11525",
		"http://[::1]:9000":  "[::1]:9000",
		"localhost:8080":     "localhost:8080",
		"localhost:99999999": "localhost:11525",
		"  \"10.0.0.1:70\" ": "10.0.0.1:70",
	}

	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("ROCAL_HOST", value)
			if got := Host(); got != want {
				t.Errorf("Host() = %q, erwartet %q", got, want)
			}
		})
	}
}

func TestPrefetchDepth(t *testing.T) {
	cases := []struct {
		value string
		want  uint
	}{
		{"", 3},
		{"1", 2},
		{"0", 2},
		{"8", 8},
		{"abc", 3},
	}

	for _, tc := range cases {
		t.Setenv("ROCAL_PREFETCH_DEPTH", tc.value)
		if got := PrefetchDepth(); got != tc.want {
			t.Errorf("PrefetchDepth(%q) = %d, erwartet %d", tc.value, got, tc.want)
		}
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, want := range cases {
		t.Setenv("ROCAL_DEBUG", value)
		if got := LogLevel(); got != want {
			t.Errorf("LogLevel(%q) = %v, erwartet %v", value, got, want)
		}
	}
}

func TestDecoderAndSeeds(t *testing.T) {
	t.Setenv("ROCAL_DECODER", "'Fused_Crop'")
	t.Setenv("ROCAL_SEED", "42")
	t.Setenv("ROCAL_NUM_THREADS", "x")

	if got := Decoder(); got != "fused_crop" {
		t.Errorf("Decoder() = %q, erwartet fused_crop", got)
	}
	if got := Seed(); got != 42 {
		t.Errorf("Seed() = %d, erwartet 42", got)
	}
	if got := NumThreads(); got != 0 {
		t.Errorf("NumThreads() = %d, erwartet 0 bei ungueltigem Wert", got)
	}
	if _, ok := Values()["ROCAL_SEED"]; !ok {
		t.Error("Values() enthaelt ROCAL_SEED nicht")
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("ROCAL_ORIGINS", "")
	base := AllowedOrigins()
	if len(base) != 6 {
		t.Fatalf("AllowedOrigins() = %v, erwartet 6 localhost-Eintraege", base)
	}

	t.Setenv("ROCAL_ORIGINS", "http://example.com,http://10.0.0.1")
	got := AllowedOrigins()
	if len(got) != 8 || got[0] != "http://example.com" || got[1] != "http://10.0.0.1" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
	if got[2] != "http://localhost" {
		t.Errorf("localhost fehlt: %v", got)
	}
}
