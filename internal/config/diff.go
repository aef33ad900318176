package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CommandsChanged is set when bindings or thresholds differ. Commands
	// are hot-reloadable.
	CommandsChanged bool

	// RestartRequired lists the sections that changed but only take effect
	// after the process restarts (e.g., "engine", "audio").
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CommandsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Commands.PhoneticThreshold != new.Commands.PhoneticThreshold ||
		old.Commands.FuzzyThreshold != new.Commands.FuzzyThreshold ||
		!slices.EqualFunc(old.Commands.Bindings, new.Commands.Bindings, func(a, b CommandBinding) bool {
			return a.Action == b.Action && slices.Equal(a.Phrases, b.Phrases)
		}) {
		d.CommandsChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.AutoStart != new.Server.AutoStart {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !reflect.DeepEqual(old.Engine, new.Engine) {
		d.RestartRequired = append(d.RestartRequired, "engine")
	}
	if old.Actions != new.Actions {
		d.RestartRequired = append(d.RestartRequired, "actions")
	}
	if old.Permission != new.Permission {
		d.RestartRequired = append(d.RestartRequired, "permission")
	}

	return d
}
