package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; connection
// settings (backend URL, archive DSN, MCP servers) require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged is true when any wake, termination, or shutdown phrase
	// set changed, or the matching thresholds did.
	WakeChanged bool

	// PersonaChanged is true when the realtime instructions, voice, or
	// greeting changed. The new values apply to the next session.
	PersonaChanged bool
}

// Empty reports whether the diff carries no changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.WakeChanged && !d.PersonaChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Wake.Phrases, new.Wake.Phrases) ||
		!slices.Equal(old.Wake.TerminationPhrases, new.Wake.TerminationPhrases) ||
		!slices.Equal(old.Wake.ShutdownPhrases, new.Wake.ShutdownPhrases) ||
		old.Wake.Threshold != new.Wake.Threshold ||
		old.Wake.DebounceMS != new.Wake.DebounceMS ||
		old.Wake.ConfidenceFloor != new.Wake.ConfidenceFloor {
		d.WakeChanged = true
	}

	if old.Realtime.Instructions != new.Realtime.Instructions ||
		old.Realtime.Voice != new.Realtime.Voice ||
		old.Realtime.Greeting != new.Realtime.Greeting {
		d.PersonaChanged = true
	}

	return d
}
