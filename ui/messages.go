package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/ttsync/internal/queue"
)

const statusMessageTimeout = 3 * time.Second

type (
	// playlistMsg carries a playlist event into the update loop.
	playlistMsg queue.Event

	// pipeClosedMsg is sent once the event pipe shuts down.
	pipeClosedMsg struct{}

	// startMsg kicks off playback after the first frame.
	startMsg struct{}

	statusMessageTimeoutMsg struct{ id int }

	copiedMsg struct{ err error }
)

// eventPipe moves playlist events, which arrive on engine goroutines, to
// the bubbletea loop. Senders block until the UI takes the event or the
// pipe is closed.
type eventPipe struct {
	ch   chan queue.Event
	done chan struct{}
}

func newEventPipe() *eventPipe {
	return &eventPipe{
		ch:   make(chan queue.Event, 32),
		done: make(chan struct{}),
	}
}

func (p *eventPipe) send(ev queue.Event) {
	select {
	case p.ch <- ev:
	case <-p.done:
	}
}

func (p *eventPipe) close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

// wait returns a command that delivers the next event.
func (p *eventPipe) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-p.ch:
			return playlistMsg(ev)
		case <-p.done:
			return pipeClosedMsg{}
		}
	}
}

func waitForStatusMessageTimeout(id int) tea.Cmd {
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{id: id}
	})
}
