package config

const (
	defaultDataDir  = "~/.local/share/fermata"
	defaultLogDir   = "~/.local/share/fermata/logs"
	defaultLockPath = "~/.local/share/fermata/fermata.lock"

	defaultWorkerBinary         = "fermata-worker"
	defaultReadyTimeoutSeconds  = 10
	defaultCallTimeoutSeconds   = 30
	defaultStopGraceSeconds     = 5
	defaultRestartLimit         = 3
	defaultRestartBackoffMillis = 1000
	defaultEventThrottleMillis  = 250
	defaultFramePoolSlots       = 3

	defaultPlaybackVolume = 80
	defaultPlaybackRate   = 1.0

	defaultJournalPath = "~/.local/share/fermata/journal.db"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			LockPath: defaultLockPath,
		},
		Worker: Worker{
			Binary:                defaultWorkerBinary,
			ReadyTimeoutSeconds:   defaultReadyTimeoutSeconds,
			CallTimeoutSeconds:    defaultCallTimeoutSeconds,
			StopGraceSeconds:      defaultStopGraceSeconds,
			RestartLimit:          defaultRestartLimit,
			RestartBackoffMillis:  defaultRestartBackoffMillis,
			EventThrottleMillis:   defaultEventThrottleMillis,
			FramePoolSlots:        defaultFramePoolSlots,
			FrameTransportEnabled: true,
		},
		Playback: Playback{
			Volume: defaultPlaybackVolume,
			Rate:   defaultPlaybackRate,
		},
		Journal: Journal{
			Enabled: true,
			Path:    defaultJournalPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
