package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/ttsync/tts"
)

// pagerModel shows the document and keeps the spoken sentence in view.
type pagerModel struct {
	viewport viewport.Model
	doc      document

	// follow scrolls along with speech until the user scrolls by hand.
	follow      bool
	currentLine int
}

func newPagerModel(sentences []tts.Sentence, dark bool) pagerModel {
	vp := viewport.New(0, 0)
	return pagerModel{
		viewport: vp,
		doc:      document{sentences: sentences, word: wordStyle(dark)},
		follow:   true,
	}
}

func (m *pagerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = max(h, 1)
	m.doc.width = max(w-2, 10)
}

// render lays out the document for the current position and scrolls to it
// when following.
func (m *pagerModel) render(current int, word tts.Boundary, haveWord bool) {
	content, line := m.doc.render(current, word, haveWord)
	m.viewport.SetContent(indent(content, 1))
	m.currentLine = line
	if m.follow {
		m.scrollToCurrent()
	}
}

// scrollToCurrent puts the current paragraph a third of the way down the
// viewport once it drifts out of view.
func (m *pagerModel) scrollToCurrent() {
	top := m.viewport.YOffset
	bottom := top + m.viewport.Height - 1
	if m.currentLine >= top && m.currentLine < bottom {
		return
	}
	m.viewport.SetYOffset(max(m.currentLine-m.viewport.Height/3, 0))
}

func (m *pagerModel) lineUp(n int) {
	m.follow = false
	m.viewport.LineUp(n)
}

func (m *pagerModel) lineDown(n int) {
	m.follow = false
	m.viewport.LineDown(n)
}

func (m *pagerModel) resumeFollow() {
	m.follow = true
	m.scrollToCurrent()
}

// statusBarView writes the one-line footer: logo, note, padding and the
// document position.
func (m pagerModel) statusBarView(b *strings.Builder, width int, note string, isError bool) {
	logo := logoStyle(" ttsync ")

	percent := math.Max(0, math.Min(1, m.viewport.ScrollPercent()))
	scrollPercent := statusBarPosStyle(fmt.Sprintf(" %3.f%% ", percent*100))
	helpNote := statusBarHelpStyle(" ? Help ")

	room := max(0, width-ansi.PrintableRuneWidth(logo)-ansi.PrintableRuneWidth(scrollPercent)-ansi.PrintableRuneWidth(helpNote))
	note = truncate.StringWithTail(" "+note+" ", uint(room), ellipsis) //nolint:gosec
	padding := strings.Repeat(" ", max(0, room-ansi.PrintableRuneWidth(note)))

	render := statusBarNoteStyle
	if isError {
		render = statusBarErrorStyle
	}
	fmt.Fprintf(b, "%s%s%s%s%s", logo, render(note), render(padding), scrollPercent, helpNote)
}

// padLines fills every line to width so background colors reach the edge.
func padLines(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] += strings.Repeat(" ", max(width-runewidth.StringWidth(l), 0))
	}
	return strings.Join(lines, "\n")
}

// indent prefixes every line with n spaces.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}
