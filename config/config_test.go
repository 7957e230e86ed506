package config

import "testing"

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("LIVEQUERY_PORT", "9090")
	t.Setenv("LIVEQUERY_WIRE_CODEC", "zstd")

	cfg := Default()
	cfg.LoadFromEnv()

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port overridden to 9090, got %d", cfg.Server.Port)
	}
	if cfg.Wire.Codec != "zstd" {
		t.Fatalf("expected codec overridden to zstd, got %q", cfg.Wire.Codec)
	}
	if cfg.Server.Host != "localhost" {
		t.Fatalf("expected unrelated defaults untouched, got host %q", cfg.Server.Host)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3, "fatal": 4, "": 1}
	for input, want := range cases {
		if got := ParseLogLevel(input); got != want {
			t.Fatalf("ParseLogLevel(%q) = %d, want %d", input, got, want)
		}
	}
}
