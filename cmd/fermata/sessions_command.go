package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fermata/internal/journal"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions [id]",
		Short: "Show playback session history",
		Long: "Without arguments, lists recent playback sessions. With a session id, " +
			"shows that session's worker lifecycle transitions, including crashes and restarts.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errors.New("journal is disabled in configuration")
			}

			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid session id %q", args[0])
				}
				return printSessionEvents(cmd, store, id)
			}
			return printRecentSessions(cmd, store, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

func printRecentSessions(cmd *cobra.Command, store *journal.Store, limit int) error {
	sessions, err := store.RecentSessions(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		target := session.MediaTarget
		if target == "" {
			target = "-"
		}
		ended := "running"
		if session.EndedAt != nil {
			ended = session.EndedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			strconv.FormatInt(session.ID, 10),
			target,
			session.StartedAt.Local().Format(time.DateTime),
			ended,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Target", "Started", "Ended"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	return nil
}

func printSessionEvents(cmd *cobra.Command, store *journal.Store, id int64) error {
	events, err := store.SessionEvents(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("list session events: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintf(out, "No events recorded for session %d\n", id)
		return nil
	}

	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			event.RecordedAt.Local().Format(time.DateTime),
			event.State,
			event.Detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Recorded", "State", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft}))
	return nil
}
