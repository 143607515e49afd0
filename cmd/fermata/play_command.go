package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"fermata/internal/engine"
	"fermata/internal/supervisor"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var volumeFlag int
	var rateFlag float64
	var showTracks bool

	cmd := &cobra.Command{
		Use:   "play <target>",
		Short: "Play a media file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			session, err := openSession(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(),
					time.Duration(cfg.Worker.StopGraceSeconds+2)*time.Second)
				defer cancel()
				_ = session.Close(closeCtx)
			}()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
			defer stop()

			p := session.player
			if err := p.Start(runCtx); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}

			target := args[0]
			if err := p.Open(runCtx, target); err != nil {
				return fmt.Errorf("open %s: %w", target, err)
			}
			session.recordTarget(target)

			volume := cfg.Playback.Volume
			if cmd.Flags().Changed("volume") {
				volume = volumeFlag
			}
			if err := p.SetVolume(runCtx, volume); err != nil {
				return err
			}
			rate := cfg.Playback.Rate
			if cmd.Flags().Changed("rate") {
				rate = rateFlag
			}
			if rate != 1.0 {
				if err := p.SetRate(runCtx, rate); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if showTracks {
				if err := printTrackTables(runCtx, p, out); err != nil {
					return err
				}
			}

			endCh := make(chan struct{}, 1)
			fatalCh := make(chan error, 1)
			defer p.OnEndReached(func() {
				select {
				case endCh <- struct{}{}:
				default:
				}
			})()
			defer p.OnError(func(message string) {
				fmt.Fprintf(cmd.ErrOrStderr(), "playback error: %s\n", message)
			})()
			defer p.OnProcessExited(func(exit supervisor.ExitPayload) {
				if exit.Final {
					select {
					case fatalCh <- fmt.Errorf("worker exited with code %d and will not be restarted", exit.Code):
					default:
					}
				}
			})()

			progress := newProgressLine(out)
			defer p.OnDurationChanged(progress.setDuration)()
			defer p.OnTimeChanged(progress.update)()
			defer p.OnStateChanged(func(state engine.State) {
				progress.setState(state)
			})()

			if err := p.Play(runCtx); err != nil {
				return err
			}

			select {
			case <-runCtx.Done():
				progress.finish()
				fmt.Fprintln(out, "interrupted")
				return nil
			case <-endCh:
				progress.finish()
				fmt.Fprintln(out, "playback finished")
				return nil
			case err := <-fatalCh:
				progress.finish()
				return err
			}
		},
	}

	cmd.Flags().IntVar(&volumeFlag, "volume", 0, "Initial volume (0-100), overrides config")
	cmd.Flags().Float64Var(&rateFlag, "rate", 0, "Playback rate, overrides config")
	cmd.Flags().BoolVar(&showTracks, "tracks", false, "Print audio and subtitle tracks before playing")
	return cmd
}
