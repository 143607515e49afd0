package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	c.normalizePlayback()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockPath) == "" {
		c.Paths.LockPath = defaultLockPath
	}
	if c.Paths.LockPath, err = expandPath(c.Paths.LockPath); err != nil {
		return fmt.Errorf("paths.lock_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorker() error {
	c.Worker.Binary = strings.TrimSpace(c.Worker.Binary)
	if c.Worker.Binary == "" {
		if value, ok := os.LookupEnv("FERMATA_WORKER_BINARY"); ok {
			c.Worker.Binary = strings.TrimSpace(value)
		}
	}
	if c.Worker.Binary == "" {
		c.Worker.Binary = defaultWorkerBinary
	}
	// Only expand explicit paths; bare names resolve through PATH at spawn.
	if strings.ContainsAny(c.Worker.Binary, "/~") {
		expanded, err := expandPath(c.Worker.Binary)
		if err != nil {
			return fmt.Errorf("worker.binary: %w", err)
		}
		c.Worker.Binary = expanded
	}
	if c.Worker.ReadyTimeoutSeconds <= 0 {
		c.Worker.ReadyTimeoutSeconds = defaultReadyTimeoutSeconds
	}
	if c.Worker.CallTimeoutSeconds <= 0 {
		c.Worker.CallTimeoutSeconds = defaultCallTimeoutSeconds
	}
	if c.Worker.StopGraceSeconds <= 0 {
		c.Worker.StopGraceSeconds = defaultStopGraceSeconds
	}
	if c.Worker.RestartLimit <= 0 {
		c.Worker.RestartLimit = defaultRestartLimit
	}
	if c.Worker.RestartBackoffMillis <= 0 {
		c.Worker.RestartBackoffMillis = defaultRestartBackoffMillis
	}
	if c.Worker.EventThrottleMillis <= 0 {
		c.Worker.EventThrottleMillis = defaultEventThrottleMillis
	}
	if c.Worker.FramePoolSlots <= 0 {
		c.Worker.FramePoolSlots = defaultFramePoolSlots
	}
	return nil
}

func (c *Config) normalizePlayback() {
	if c.Playback.Volume < 0 {
		c.Playback.Volume = 0
	}
	if c.Playback.Volume > 100 {
		c.Playback.Volume = 100
	}
	if c.Playback.Rate <= 0 {
		c.Playback.Rate = defaultPlaybackRate
	}
}

func (c *Config) normalizeJournal() error {
	var err error
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = defaultJournalPath
	}
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
