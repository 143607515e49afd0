// Command fermata-worker hosts the media engine in an isolated process.
//
// It speaks newline-delimited JSON on stdin/stdout with the supervising
// player process and reserves stderr for free-form diagnostics. The process
// exits cleanly when its input stream closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"fermata/internal/engine"
	"fermata/internal/logging"
	"fermata/internal/worker"
)

func main() {
	if err := newWorkerCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newWorkerCommand() *cobra.Command {
	var throttleMillis int
	var poolSlots int
	var noFrames bool
	var logLevel string

	cmd := &cobra.Command{
		Use:           "fermata-worker",
		Short:         "Fermata media-engine worker process",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stdout carries the protocol; all logging goes to stderr.
			logger, err := logging.New(logging.Options{
				Level:       logLevel,
				Format:      "console",
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}

			opts := []worker.Option{
				worker.WithThrottleInterval(time.Duration(throttleMillis) * time.Millisecond),
				worker.WithPoolCount(poolSlots),
			}
			if noFrames {
				opts = append(opts, worker.WithoutFrameTransport())
			}

			d := worker.New(os.Stdin, os.Stdout, newEngine, logger, opts...)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- d.Run(runCtx) }()

			select {
			case err := <-errCh:
				return err
			case <-runCtx.Done():
				// Termination signal while the input stream is still open.
				d.Close()
				return nil
			}
		},
	}

	cmd.Flags().IntVar(&throttleMillis, "throttle-ms", int(worker.DefaultThrottleInterval/time.Millisecond),
		"Minimum spacing of rapid time/position events in milliseconds")
	cmd.Flags().IntVar(&poolSlots, "pool-slots", 0, "Frame buffer pool slot count (0 for default)")
	cmd.Flags().BoolVar(&noFrames, "no-frames", false, "Disable buffered frame delivery")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Diagnostic log level")
	return cmd
}

func newEngine() engine.Engine {
	return engine.NewSim()
}
