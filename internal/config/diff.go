package config

import "reflect"

// ConfigDiff describes what changed between two configs. Settings and the
// log level apply to a running server; every other change is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SettingsChanged is true when the relevance preferences or the
	// auto-respond flag changed. They are pushed to running sessions.
	SettingsChanged bool

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Settings() != new.Settings() {
		d.SettingsChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	// Preferences and auto_respond are hot; the rest of their sections is not.
	oldRel, newRel := ruleLimits(old.Relevance), ruleLimits(new.Relevance)
	oldIntent, newIntent := old.Intent, new.Intent
	oldIntent.AutoRespond, newIntent.AutoRespond = false, false

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"listening", old.Listening, new.Listening},
		{"speaker", old.Speaker, new.Speaker},
		{"relevance", oldRel, newRel},
		{"wake_word", old.WakeWord, new.WakeWord},
		{"intent", oldIntent, newIntent},
		{"learner", old.Learner, new.Learner},
		{"storage", old.Storage, new.Storage},
		{"dispatch", old.Dispatch, new.Dispatch},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}

func ruleLimits(r RelevanceConfig) RelevanceConfig {
	return RelevanceConfig{
		RepetitionWindow: r.RepetitionWindow,
		RepetitionCount:  r.RepetitionCount,
		SelfTalkMaxWords: r.SelfTalkMaxWords,
	}
}
