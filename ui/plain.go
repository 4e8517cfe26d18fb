package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/muesli/reflow/wordwrap"
	te "github.com/muesli/termenv"

	"github.com/dgnsrekt/ttsync/internal/queue"
)

const plainWidth = 78

// Outcome is where plain playback ended.
type Outcome struct {
	Index     int
	CharIndex int
	Finished  bool
}

// RunPlain plays through player without a TUI, printing each sentence to w
// as it starts. It returns when the last sentence ends, playback stops or
// fails, or ctx is done, along with the position reached.
func RunPlain(ctx context.Context, w io.Writer, player Player, cfg Config) (Outcome, error) {
	out := te.NewOutput(w)
	pipe := newEventPipe()
	defer pipe.close()
	player.Subscribe(pipe.send)

	pos := Outcome{Index: cfg.StartIndex, CharIndex: cfg.StartChar}
	if err := player.Start(cfg.StartIndex, cfg.StartChar); err != nil {
		return pos, err
	}

	for {
		select {
		case <-ctx.Done():
			player.Stop()
			return pos, nil

		case ev := <-pipe.ch:
			switch ev.Kind {
			case queue.EventSentence:
				if ev.Index != pos.Index {
					pos.CharIndex = 0
				}
				pos.Index = ev.Index
				counter := out.String(fmt.Sprintf("[%d/%d]", ev.Index+1, ev.Total)).Faint()
				fmt.Fprintf(w, "%s %s\n", counter, wordwrap.String(ev.Sentence.Text, plainWidth))
			case queue.EventWord:
				pos.Index, pos.CharIndex = ev.Index, ev.Word.CharIndex
			case queue.EventFinished:
				return Outcome{Index: ev.Index, Finished: true}, nil
			case queue.EventStopped:
				return pos, nil
			case queue.EventError:
				if ev.Err != nil {
					return pos, ev.Err
				}
				return pos, fmt.Errorf("sentence %d failed", ev.Index+1)
			case queue.EventPaused, queue.EventResumed:
			}
		}
	}
}
