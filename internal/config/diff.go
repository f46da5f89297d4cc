package config

// ConfigDiff describes what changed between two configs. Only fields that
// affect newly started sessions or logging are tracked; a running session is
// never reconfigured mid-flight.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true when voice, system instruction, video, or the
	// sampler cadence changed. Takes effect on the next session.
	SessionChanged bool

	// LiveChanged is true when the transport selection, credentials, model,
	// or endpoint changed. Takes effect on the next session.
	LiveChanged bool

	// DevicesChanged is true when any audio or video device setting changed.
	// Takes effect on the next session.
	DevicesChanged bool
}

// Any reports whether the diff contains any tracked change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SessionChanged || d.LiveChanged || d.DevicesChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Session != new.Session {
		d.SessionChanged = true
	}
	if old.Live != new.Live {
		d.LiveChanged = true
	}
	if old.Audio != new.Audio || old.Video != new.Video {
		d.DevicesChanged = true
	}

	return d
}
