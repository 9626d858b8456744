package config

// ConfigDiff describes what changed between two configs.
// Only the log level and the token are applied without a restart; every
// other changed setting is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TokenChanged bool
	NewToken     string

	// RestartRequired names the changed settings that only take effect
	// after a restart, in a stable order.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.TokenChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Remote.Token != new.Remote.Token {
		d.TokenChanged = true
		d.NewToken = new.Remote.Token
	}

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("remote.base_url", old.Remote.BaseURL != new.Remote.BaseURL)
	restart("remote.role", old.Remote.Role != new.Remote.Role)
	restart("remote.request_timeout", old.Remote.RequestTimeout != new.Remote.RequestTimeout)
	restart("remote.breaker_failures", old.Remote.BreakerFailures != new.Remote.BreakerFailures)
	restart("remote.breaker_reset", old.Remote.BreakerReset != new.Remote.BreakerReset)
	restart("stream", !sameStream(old.Stream, new.Stream))
	restart("journal", old.Journal != new.Journal)
	restart("telemetry", old.Telemetry != new.Telemetry)

	return d
}

func sameStream(a, b StreamConfig) bool {
	return a.ReconnectEnabled() == b.ReconnectEnabled() &&
		a.MaxRetries == b.MaxRetries &&
		a.InitialBackoff == b.InitialBackoff &&
		a.MaxBackoff == b.MaxBackoff
}
