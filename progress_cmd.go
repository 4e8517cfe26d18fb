package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/ttsync/internal/progress"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "List how far each document has been read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		entries, err := store.All(cmd.Context())
		if err != nil {
			return fmt.Errorf("unable to list progress: %w", err)
		}
		return printProgress(cmd.OutOrStdout(), entries)
	},
}

var progressClearCmd = &cobra.Command{
	Use:   "clear SOURCE",
	Short: "Forget the saved position of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		id := progress.CanonicalPath(args[0])
		if strings.Contains(args[0], "://") {
			id = progress.Canonical(args[0])
		}
		if err := store.Clear(cmd.Context(), id); err != nil {
			return fmt.Errorf("unable to clear progress: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared", args[0])
		return nil
	},
}

func init() {
	progressCmd.AddCommand(progressClearCmd)
}

func printProgress(w io.Writer, entries []progress.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "Nothing read yet.")
		return err //nolint:wrapcheck
	}
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.DocID
		}
		state := fmt.Sprintf("%3.0f%%  sentence %d of %d", e.Fraction()*100, min(e.BlockIndex+1, e.BlockCount), e.BlockCount)
		if e.BlockIndex >= e.BlockCount {
			state = "done"
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %s\n  %s\n", keyword(title), state, faint(humanize.Time(e.UpdatedAt)), faint(e.DocID)); err != nil {
			return err //nolint:wrapcheck
		}
	}
	return nil
}
