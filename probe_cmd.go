package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/ttsync/tts"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the configured engine can synthesize",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close() //nolint:errcheck

		return runProbe(cmd, rt.engine, cfg.Engine, cmd.OutOrStdout())
	},
}

// runProbe probes engine, printing the diagnostics as they arrive.
func runProbe(cmd *cobra.Command, engine *tts.Engine, name string, w io.Writer) error {
	unsubscribe := engine.OnDiag(func(d tts.DiagnosticEvent) {
		line := d.Code
		if d.Detail != "" {
			line += " " + d.Detail
		}
		fmt.Fprintln(w, faint(line))
	})
	defer unsubscribe()

	h := engine.Probe(cmd.Context())
	if !h.Available {
		return fmt.Errorf("%w: %s engine: %s", tts.ErrProviderUnavailable, name, h.Reason)
	}
	voices := engine.LoadVoices(cmd.Context())
	fmt.Fprintf(w, "%s engine is %s, %d voices\n", name, keyword("available"), len(voices))
	return nil
}
