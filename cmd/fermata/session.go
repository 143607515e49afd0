package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"fermata/internal/config"
	"fermata/internal/journal"
	"fermata/internal/logging"
	"fermata/internal/player"
	"fermata/internal/supervisor"
)

// playerSession bundles everything one `fermata play` (or `tracks`) run
// holds: the instance lock, the journal record, and the supervised player.
type playerSession struct {
	player    *player.Player
	store     *journal.Store
	sessionID int64
	lock      *flock.Flock
	logger    *slog.Logger
}

// openSession acquires the single-instance lock, opens the journal, and
// builds the supervised player from configuration. The worker is not started
// yet; call session.player.Start.
func openSession(cfg *config.Config, logger *slog.Logger) (*playerSession, error) {
	lock := flock.New(cfg.Paths.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another fermata instance is already running")
	}

	session := &playerSession{lock: lock, logger: logger}

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			_ = lock.Unlock()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		sessionID, err := store.BeginSession(context.Background())
		if err != nil {
			_ = store.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("begin journal session: %w", err)
		}
		session.store = store
		session.sessionID = sessionID
	}

	sup, err := supervisor.New(workerSpawner(cfg), supervisorOptions(cfg, logger, session))
	if err != nil {
		session.release()
		return nil, err
	}
	session.player = player.New(sup, logger)
	return session, nil
}

// workerSpawner builds the exec spawner, passing worker tuning through as
// flags so one config file governs both processes.
func workerSpawner(cfg *config.Config) supervisor.Spawner {
	args := append([]string(nil), cfg.Worker.Args...)
	args = append(args,
		"--throttle-ms", strconv.Itoa(cfg.Worker.EventThrottleMillis),
		"--pool-slots", strconv.Itoa(cfg.Worker.FramePoolSlots),
		"--log-level", cfg.Logging.Level,
	)
	if !cfg.Worker.FrameTransportEnabled {
		args = append(args, "--no-frames")
	}
	return supervisor.NewExecSpawner(cfg.Worker.Binary, args...)
}

func supervisorOptions(cfg *config.Config, logger *slog.Logger, session *playerSession) supervisor.Options {
	return supervisor.Options{
		ReadyTimeout:   time.Duration(cfg.Worker.ReadyTimeoutSeconds) * time.Second,
		CallTimeout:    time.Duration(cfg.Worker.CallTimeoutSeconds) * time.Second,
		StopGrace:      time.Duration(cfg.Worker.StopGraceSeconds) * time.Second,
		RestartLimit:   cfg.Worker.RestartLimit,
		RestartBackoff: time.Duration(cfg.Worker.RestartBackoffMillis) * time.Millisecond,
		Logger:         logger,
		OnStateChange:  session.recordState,
	}
}

func (s *playerSession) recordState(state supervisor.State) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordState(context.Background(), s.sessionID, string(state), ""); err != nil {
		s.logger.Warn("journal write failed", logging.Error(err))
	}
}

func (s *playerSession) recordTarget(target string) {
	if s.store == nil {
		return
	}
	if err := s.store.SetMediaTarget(context.Background(), s.sessionID, target); err != nil {
		s.logger.Warn("journal write failed", logging.Error(err))
	}
}

// Close shuts the worker down and finalizes the journal session.
func (s *playerSession) Close(ctx context.Context) error {
	var err error
	if s.player != nil {
		err = s.player.Shutdown(ctx)
	}
	s.release()
	return err
}

func (s *playerSession) release() {
	if s.store != nil {
		_ = s.store.EndSession(context.Background(), s.sessionID)
		_ = s.store.Close()
		s.store = nil
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
		s.lock = nil
	}
}
