package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/ttsync/internal/progress"
	"github.com/dgnsrekt/ttsync/internal/queue"
	"github.com/dgnsrekt/ttsync/tts"
	"github.com/dgnsrekt/ttsync/tts/sentence"
	"github.com/dgnsrekt/ttsync/ui"
)

var errNothingToRead = errors.New("nothing to read")

// docID is the progress key of a source, or "" when it has none.
func docID(src *source) string {
	switch {
	case src.ID == "":
		return ""
	case strings.Contains(src.ID, "://"):
		return progress.Canonical(src.ID)
	default:
		return progress.CanonicalPath(src.ID)
	}
}

func docFormat(src *source) string {
	switch strings.ToLower(filepath.Ext(src.ID)) {
	case ".md", ".markdown", ".mdown", ".mkdn", ".mkd":
		return "markdown"
	case "":
		return ""
	default:
		return "text"
	}
}

// resumePosition returns where to start given a saved entry. A finished
// document or one whose sentence count changed starts over.
func resumePosition(e progress.Entry, count int) (index, charIndex int) {
	if e.BlockCount != count || e.BlockIndex < 0 || e.BlockIndex >= count {
		return 0, 0
	}
	return e.BlockIndex, max(e.CharIndex, 0)
}

// play speaks text sentence by sentence, in the TUI or as plain output to w,
// and records how far it got.
func play(ctx context.Context, w io.Writer, rt *runtime, src *source, text string, tui bool) error {
	sentences := sentence.NewParser().Parse(text)
	if len(sentences) == 0 {
		return errNothingToRead
	}

	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Title = src.Title
	cfg.Rate = rt.cfg.Rate
	cfg.EnableMouse = cfg.EnableMouse || viper.GetBool("mouse")

	id := docID(src)
	var store *progress.Store
	if id != "" {
		if store, err = openProgress(ctx); err != nil {
			log.Warn("Progress disabled", "err", err)
		} else {
			defer store.Close() //nolint:errcheck
			if !restart {
				if e, err := store.Get(ctx, id); err == nil {
					cfg.StartIndex, cfg.StartChar = resumePosition(e, len(sentences))
					log.Info("Resuming", "doc", id, "sentence", cfg.StartIndex, "char", cfg.StartChar)
				}
			}
		}
	}

	if h := rt.engine.Probe(ctx); !h.Available {
		return fmt.Errorf("%w: %s engine: %s", tts.ErrProviderUnavailable, rt.cfg.Engine, h.Reason)
	}

	playlist := queue.New(rt.engine, sentences, queue.Options{
		Lookahead: viper.GetInt("lookahead"),
		Logger:    log.WithPrefix("playlist"),
	})
	defer playlist.Close() //nolint:errcheck

	var (
		index, charIndex int
		finished         bool
		runErr           error
	)
	if tui {
		m, err := ui.NewProgram(cfg, playlist, rt.engine).Run()
		if err != nil {
			return fmt.Errorf("unable to run tui program: %w", err)
		}
		if model, ok := m.(ui.Model); ok {
			index, charIndex = model.Position()
			finished = model.Finished()
		}
	} else {
		var out ui.Outcome
		out, runErr = ui.RunPlain(ctx, w, playlist, cfg)
		index, charIndex, finished = out.Index, out.CharIndex, out.Finished
	}

	if store != nil {
		e := progress.Entry{
			DocID:      id,
			BlockIndex: index,
			BlockCount: len(sentences),
			CharIndex:  charIndex,
			Title:      src.Title,
			Format:     docFormat(src),
		}
		if finished {
			e.BlockIndex, e.CharIndex = len(sentences), 0
		}
		// the run context may be cancelled already
		if err := store.Save(context.WithoutCancel(ctx), e); err != nil {
			log.Warn("Could not save progress", "doc", id, "err", err)
		}
	}
	return runErr
}
