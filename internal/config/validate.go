package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorker() error {
	if strings.TrimSpace(c.Worker.Binary) == "" {
		return errors.New("worker.binary must be set (or set FERMATA_WORKER_BINARY)")
	}
	if err := ensurePositiveMap(map[string]int{
		"worker.ready_timeout_seconds": c.Worker.ReadyTimeoutSeconds,
		"worker.call_timeout_seconds":  c.Worker.CallTimeoutSeconds,
		"worker.stop_grace_seconds":    c.Worker.StopGraceSeconds,
		"worker.restart_limit":         c.Worker.RestartLimit,
		"worker.restart_backoff_ms":    c.Worker.RestartBackoffMillis,
		"worker.event_throttle_ms":     c.Worker.EventThrottleMillis,
		"worker.frame_pool_slots":      c.Worker.FramePoolSlots,
	}); err != nil {
		return err
	}
	if c.Worker.FramePoolSlots > 16 {
		return errors.New("worker.frame_pool_slots must be 16 or fewer")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.Volume < 0 || c.Playback.Volume > 100 {
		return errors.New("playback.volume must be between 0 and 100")
	}
	if c.Playback.Rate <= 0 || c.Playback.Rate > 8 {
		return errors.New("playback.rate must be between 0 and 8")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return errors.New("journal.path must be set when journal.enabled is true")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
