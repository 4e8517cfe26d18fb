// Package ui provides the terminal player: the document with the spoken
// word highlighted, a status bar and keyboard controls.
package ui

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	te "github.com/muesli/termenv"

	"github.com/dgnsrekt/ttsync/internal/queue"
	"github.com/dgnsrekt/ttsync/tts"
)

const rateStep = 0.1

// Player is the part of *queue.Playlist the UI drives.
type Player interface {
	Start(index, charIndex int) error
	Next() error
	Previous() error
	TogglePause()
	Stop()
	Playing() bool
	Position() (index, total int)
	Sentences() []tts.Sentence
	Subscribe(fn func(queue.Event))
}

// RateControl changes the speaking rate; *tts.Engine implements it.
type RateControl interface {
	SetRate(rate float64)
}

// Model is the bubbletea model of the player.
type Model struct {
	cfg    Config
	player Player
	rates  RateControl
	pipe   *eventPipe

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	pager   pagerModel
	status  status

	current  int
	word     tts.Boundary
	haveWord bool

	width, height int

	statusMessage string
	statusID      int

	now func() time.Time
}

// NewProgram returns a new Tea program playing through player.
func NewProgram(cfg Config, player Player, rates RateControl) *tea.Program {
	cfg.DarkBackground = te.HasDarkBackground()
	log.Debug("Starting player", "title", cfg.Title, "start", cfg.StartIndex, "dark", cfg.DarkBackground)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(New(cfg, player, rates), opts...)
}

// New creates the model and subscribes it to player's events.
func New(cfg Config, player Player, rates RateControl) Model {
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	pipe := newEventPipe()
	player.Subscribe(pipe.send)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sp.Style.Foreground(fuchsia)

	_, total := player.Position()
	return Model{
		cfg:     cfg,
		player:  player,
		rates:   rates,
		pipe:    pipe,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		pager:   newPagerModel(player.Sentences(), cfg.DarkBackground),
		status:  status{state: stateLoading, index: cfg.StartIndex, total: total, rate: cfg.Rate},
		current: cfg.StartIndex,
		now:     time.Now,
	}
}

// Position returns the sentence being spoken and the byte offset of the
// last word reached within it.
func (m Model) Position() (index, charIndex int) {
	if m.haveWord {
		return m.current, m.word.CharIndex
	}
	return m.current, 0
}

// Finished reports whether the last sentence was spoken to the end.
func (m Model) Finished() bool {
	return m.status.state == stateFinished
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.pipe.wait(),
		m.spinner.Tick,
		func() tea.Msg { return startMsg{} },
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case startMsg:
		if err := m.player.Start(m.cfg.StartIndex, m.cfg.StartChar); err != nil {
			cmds = append(cmds, m.showStatusMessage("cannot start: "+err.Error()))
		}

	case playlistMsg:
		cmds = append(cmds, m.handleEvent(queue.Event(msg)), m.pipe.wait())

	case pipeClosedMsg:
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	case tea.MouseMsg:
		switch msg.Button { //nolint:exhaustive
		case tea.MouseButtonWheelUp:
			m.pager.lineUp(3)
		case tea.MouseButtonWheelDown:
			m.pager.lineDown(3)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case statusMessageTimeoutMsg:
		if msg.id == m.statusID {
			m.statusMessage = ""
		}

	case copiedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatusMessage("copy failed: "+msg.err.Error()))
		} else {
			cmds = append(cmds, m.showStatusMessage("copied sentence"))
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleEvent(ev queue.Event) tea.Cmd {
	m.status.apply(ev, m.now())

	switch ev.Kind {
	case queue.EventSentence:
		m.current = ev.Index
		m.haveWord = false
	case queue.EventWord:
		m.current = ev.Index
		m.word = ev.Word
		m.haveWord = true
	case queue.EventFinished:
		m.render()
		if m.cfg.ExitOnFinish {
			m.pipe.close()
			return tea.Quit
		}
		return nil
	case queue.EventError:
		log.Error("Playback failed", "sentence", ev.Index, "err", ev.Err)
	}
	m.render()
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.pipe.close()
		return tea.Quit

	case key.Matches(msg, m.keys.Pause):
		if m.player.Playing() {
			m.player.TogglePause()
			return nil
		}
		return m.restart()

	case key.Matches(msg, m.keys.Stop):
		if m.player.Playing() {
			m.player.Stop()
			return nil
		}
		return m.restart()

	case key.Matches(msg, m.keys.Next):
		if err := m.player.Next(); err != nil {
			return m.navigationError(err)
		}

	case key.Matches(msg, m.keys.Previous):
		if err := m.player.Previous(); err != nil {
			return m.navigationError(err)
		}

	case key.Matches(msg, m.keys.Faster):
		return m.changeRate(rateStep)

	case key.Matches(msg, m.keys.Slower):
		return m.changeRate(-rateStep)

	case key.Matches(msg, m.keys.Up):
		m.pager.lineUp(1)

	case key.Matches(msg, m.keys.Down):
		m.pager.lineDown(1)

	case key.Matches(msg, m.keys.Follow):
		m.pager.resumeFollow()

	case key.Matches(msg, m.keys.Copy):
		return m.copyCurrent()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
	}
	return nil
}

// restart plays again from the current sentence.
func (m *Model) restart() tea.Cmd {
	index, _ := m.Position()
	if m.status.state == stateFinished {
		index = 0
	}
	if err := m.player.Start(index, 0); err != nil {
		return m.showStatusMessage(err.Error())
	}
	return nil
}

func (m *Model) navigationError(err error) tea.Cmd {
	if errors.Is(err, queue.ErrOutOfRange) {
		return m.showStatusMessage("no more sentences")
	}
	return m.showStatusMessage(err.Error())
}

// changeRate adjusts the speaking rate. Playing audio is restarted from the
// current word so the change is heard at once.
func (m *Model) changeRate(delta float64) tea.Cmd {
	rate := math.Round((m.status.rate+delta)*10) / 10
	rate = min(max(rate, tts.MinRate), tts.MaxRate)
	if rate == m.status.rate || m.rates == nil {
		return nil
	}
	m.status.rate = rate
	m.rates.SetRate(rate)

	if m.player.Playing() && m.status.state == statePlaying {
		index, char := m.Position()
		if err := m.player.Start(index, char); err != nil {
			return m.showStatusMessage(err.Error())
		}
	}
	return m.showStatusMessage(fmt.Sprintf("rate %.1fx", rate))
}

func (m *Model) copyCurrent() tea.Cmd {
	sentences := m.player.Sentences()
	if m.current < 0 || m.current >= len(sentences) {
		return nil
	}
	text := sentences[m.current].Text
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(text)}
	}
}

func (m *Model) showStatusMessage(msg string) tea.Cmd {
	m.statusID++
	m.statusMessage = msg
	return waitForStatusMessageTimeout(m.statusID)
}

func (m *Model) resize() {
	helpHeight := 0
	if m.help.ShowAll {
		helpHeight = strings.Count(m.help.View(m.keys), "\n") + 1
	}
	// title, progress bar and status bar
	m.pager.setSize(m.width, m.height-2-statusBarHeight-helpHeight)
	m.render()
}

func (m *Model) render() {
	m.pager.render(m.current, m.word, m.haveWord)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	title := runewidth.Truncate(m.cfg.Title, max(m.width-4, 1), ellipsis)
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(" " + m.status.progressBar(m.width-2) + "\n")
	b.WriteString(m.pager.viewport.View() + "\n")

	note := m.status.compact()
	if m.status.state == stateLoading {
		note = m.spinner.View() + " " + strings.TrimPrefix(note, m.status.state.icon()+" ")
	}
	if d := m.status.listened(m.now()); d > 0 {
		note += " · " + formatDuration(d)
	}
	isError := false
	switch {
	case m.statusMessage != "":
		note = m.statusMessage
	case m.status.state == stateError && m.status.errorMsg != "":
		note = m.status.errorMsg
		isError = true
	}
	m.pager.statusBarView(&b, m.width, note, isError)

	if m.help.ShowAll {
		b.WriteString("\n" + padLines(m.help.View(m.keys), m.width))
	}
	return b.String()
}
