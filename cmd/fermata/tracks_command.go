package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fermata/internal/player"
)

func newTracksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tracks <target>",
		Short: "List the audio and subtitle tracks of a media file",
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

			runCtx := cmd.Context()
			p := session.player
			if err := p.Start(runCtx); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			if err := p.Open(runCtx, args[0]); err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			session.recordTarget(args[0])

			return printTrackTables(runCtx, p, cmd.OutOrStdout())
		},
	}
}

func printTrackTables(ctx context.Context, p *player.Player, out io.Writer) error {
	audio, err := p.AudioTracks(ctx)
	if err != nil {
		return fmt.Errorf("list audio tracks: %w", err)
	}
	subtitles, err := p.SubtitleTracks(ctx)
	if err != nil {
		return fmt.Errorf("list subtitle tracks: %w", err)
	}

	audioRows := make([][]string, 0, len(audio))
	for _, track := range audio {
		audioRows = append(audioRows, []string{
			strconv.Itoa(track.ID),
			track.DisplayTitle(),
			strconv.Itoa(track.Channels),
		})
	}
	fmt.Fprintln(out, "Audio tracks:")
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title", "Channels"},
		audioRows,
		[]columnAlignment{alignRight, alignLeft, alignRight}))

	subtitleRows := make([][]string, 0, len(subtitles))
	for _, track := range subtitles {
		subtitleRows = append(subtitleRows, []string{
			strconv.Itoa(track.ID),
			track.DisplayTitle(),
		})
	}
	fmt.Fprintln(out, "Subtitle tracks:")
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title"},
		subtitleRows,
		[]columnAlignment{alignRight, alignLeft}))
	return nil
}
