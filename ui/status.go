package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/ttsync/internal/queue"
)

// playerState is what the status bar shows.
type playerState int

const (
	stateLoading playerState = iota // waiting for the first word of a sentence
	statePlaying
	statePaused
	stateStopped
	stateFinished
	stateError
)

func (s playerState) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case statePlaying:
		return "playing"
	case statePaused:
		return "paused"
	case stateStopped:
		return "stopped"
	case stateFinished:
		return "finished"
	case stateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s playerState) icon() string {
	switch s {
	case stateLoading:
		return "⟳"
	case statePlaying:
		return "▶"
	case statePaused:
		return "⏸"
	case stateStopped:
		return "■"
	case stateFinished:
		return "✓"
	case stateError:
		return "✗"
	default:
		return "○"
	}
}

func (s playerState) color() lipgloss.TerminalColor {
	switch s {
	case statePlaying, stateFinished:
		return mintGreen
	case statePaused:
		return yellow
	case stateLoading:
		return lipgloss.Color("#00AAFF")
	case stateError:
		return red
	default:
		return gray
	}
}

// status tracks playback for the status bar.
type status struct {
	state    playerState
	index    int
	total    int
	rate     float64
	started  time.Time
	elapsed  time.Duration
	errorMsg string
}

// apply folds a playlist event into the status.
func (s *status) apply(ev queue.Event, now time.Time) {
	s.index = ev.Index
	s.total = ev.Total
	switch ev.Kind {
	case queue.EventSentence:
		s.state = stateLoading
		s.errorMsg = ""
		if s.started.IsZero() {
			s.started = now
		}
	case queue.EventWord, queue.EventResumed:
		s.state = statePlaying
		if s.started.IsZero() {
			s.started = now
		}
	case queue.EventPaused:
		s.pauseClock(now)
		s.state = statePaused
	case queue.EventStopped:
		s.pauseClock(now)
		s.state = stateStopped
	case queue.EventFinished:
		s.pauseClock(now)
		s.state = stateFinished
		s.index = s.total - 1
	case queue.EventError:
		s.pauseClock(now)
		s.state = stateError
		if ev.Err != nil {
			s.errorMsg = ev.Err.Error()
		}
	}
}

// pauseClock banks the running time so paused periods are not counted.
func (s *status) pauseClock(now time.Time) {
	if !s.started.IsZero() {
		s.elapsed += now.Sub(s.started)
		s.started = time.Time{}
	}
}

func (s status) listened(now time.Time) time.Duration {
	d := s.elapsed
	if !s.started.IsZero() && (s.state == statePlaying || s.state == stateLoading) {
		d += now.Sub(s.started)
	}
	return d
}

func (s status) progress() float64 {
	if s.total <= 0 {
		return 0
	}
	if s.state == stateFinished {
		return 1
	}
	return min(float64(s.index)/float64(s.total), 1)
}

// compact returns the short state label, e.g. "▶ 3/42 1.2x".
func (s status) compact() string {
	label := fmt.Sprintf("%s %s", s.state.icon(), s.state)
	if s.total > 0 {
		label += fmt.Sprintf(" %d/%d", min(s.index+1, s.total), s.total)
	}
	if s.rate > 0 && s.rate != 1 {
		label += fmt.Sprintf(" %.1fx", s.rate)
	}
	return label
}

// progressBar renders a bar of width cells.
func (s status) progressBar(width int) string {
	if width < 10 || s.total <= 0 {
		return ""
	}
	filled := min(int(s.progress()*float64(width)), width)
	bar := lipgloss.NewStyle().Foreground(s.state.color()).Render(strings.Repeat("█", filled))
	return bar + lipgloss.NewStyle().Foreground(gray).Render(strings.Repeat("░", width-filled))
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
