package config_test

import (
	"testing"

	"github.com/maylavoice/mayla/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Realtime: config.RealtimeConfig{
			Voice:        "alloy",
			Instructions: "You are Mayla.",
			Greeting:     "Hey Mayla",
		},
		Wake: config.WakeConfig{
			Phrases:   []string{"hey mayla", "mayla"},
			Threshold: 0.8,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.WakeChanged || d.PersonaChanged {
		t.Errorf("unrelated flags set: %+v", d)
	}
}

func TestDiff_WakePhrases(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Wake.Phrases = []string{"hey mayla", "mayla", "hey mailer"}

	d := config.Diff(old, new)
	if !d.WakeChanged {
		t.Error("WakeChanged should be true")
	}
	if d.LogLevelChanged || d.PersonaChanged {
		t.Errorf("unrelated flags set: %+v", d)
	}
}

func TestDiff_WakeTuning(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Wake.DebounceMS = 5000

	d := config.Diff(old, new)
	if !d.WakeChanged {
		t.Error("WakeChanged should be true for debounce change")
	}
}

func TestDiff_Persona(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Realtime.Voice = "verse"

	d := config.Diff(old, new)
	if !d.PersonaChanged {
		t.Error("PersonaChanged should be true")
	}
	if d.WakeChanged || d.LogLevelChanged {
		t.Errorf("unrelated flags set: %+v", d)
	}
}

func TestDiff_BackendURLIsRestartBound(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Backend.BaseURL = "http://other:3000"

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("backend URL change should not appear in hot-reload diff, got %+v", d)
	}
}
