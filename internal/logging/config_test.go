package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) got=%v ok=%v want=%v", raw, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("unknown level must not parse")
	}
	if _, ok := ParseLevel(""); ok {
		t.Fatalf("empty level must not parse")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogJSON, "true")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || cfg.Timestamp || !cfg.NoColor || !cfg.JSON {
		t.Fatalf("unexpected config after overrides: %+v", cfg)
	}
}

func TestApplyJSONWritesStructuredFields(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Apply(Config{Level: zerolog.InfoLevel, JSON: true, Out: &buf})
	log.Info().Str("router", "r1").Msg("hello")
	log.Debug().Msg("suppressed")

	out := buf.String()
	if !strings.Contains(out, `"router":"r1"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Fatalf("debug line should be filtered: %s", out)
	}
}
