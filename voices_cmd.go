package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/dgnsrekt/ttsync/tts"
)

var voicesCmd = &cobra.Command{
	Use:     "voices [FILTER]",
	Short:   "List the voices of the configured engine",
	Long:    paragraph(fmt.Sprintf("\nList the voices of the configured engine. An optional %s narrows the list by id, name or language.", keyword("filter"))),
	Example: paragraph("ttsync voices\nttsync voices --engine openai nova\nttsync voices german"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close() //nolint:errcheck

		ctx := cmd.Context()
		if h := rt.engine.Probe(ctx); !h.Available {
			return fmt.Errorf("%w: %s", tts.ErrProviderUnavailable, h.Reason)
		}
		voices := rt.engine.LoadVoices(ctx)
		if len(args) > 0 {
			voices = filterVoices(voices, args[0])
		}
		return printVoices(cmd.OutOrStdout(), voices)
	},
}

// languageName returns the English name of a BCP 47 tag, or the tag itself
// when it does not parse.
func languageName(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

type voiceSource []tts.Voice

func (v voiceSource) String(i int) string {
	return strings.Join([]string{v[i].ID, v[i].Name, v[i].Language, languageName(v[i].Language)}, " ")
}

func (v voiceSource) Len() int { return len(v) }

// filterVoices returns the voices fuzzily matching query, best first.
func filterVoices(voices []tts.Voice, query string) []tts.Voice {
	query = strings.TrimSpace(query)
	if query == "" {
		return voices
	}
	matches := fuzzy.FindFrom(query, voiceSource(voices))
	out := make([]tts.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

func printVoices(w io.Writer, voices []tts.Voice) error {
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, "No voices found.")
		return err //nolint:wrapcheck
	}
	rows := make([][]string, 0, len(voices))
	for _, v := range voices {
		id := v.ID
		if v.Default {
			id += " *"
		}
		rows = append(rows, []string{id, v.Name, languageName(v.Language), v.Gender})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "NAME", "LANGUAGE", "GENDER").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true)
			}
			return lipgloss.NewStyle()
		}).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.Render())
	return err //nolint:wrapcheck
}
