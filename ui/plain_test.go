package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsync/internal/queue"
	"github.com/dgnsrekt/ttsync/tts"
)

// scriptedPlayer replays events when started.
type scriptedPlayer struct {
	*fakePlayer
	script []queue.Event
}

func (p *scriptedPlayer) Start(index, charIndex int) error {
	if err := p.fakePlayer.Start(index, charIndex); err != nil {
		return err
	}
	go func() {
		for _, ev := range p.script {
			p.emit(ev)
		}
	}()
	return nil
}

func TestRunPlainFinishes(t *testing.T) {
	fp := newFakePlayer("Hello there.", "General Kenobi.")
	p := &scriptedPlayer{fakePlayer: fp, script: []queue.Event{
		{Kind: queue.EventSentence, Index: 0, Total: 2, Sentence: fp.sentences[0]},
		{Kind: queue.EventWord, Index: 0, Total: 2, Word: tts.Boundary{CharIndex: 6}},
		{Kind: queue.EventSentence, Index: 1, Total: 2, Sentence: fp.sentences[1]},
		{Kind: queue.EventFinished, Index: 1, Total: 2},
	}}

	var out bytes.Buffer
	got, err := RunPlain(context.Background(), &out, p, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if got != (Outcome{Index: 1, Finished: true}) {
		t.Errorf("outcome = %+v, want finished at 1", got)
	}
	for _, want := range []string{"[1/2]", "Hello there.", "[2/2]", "General Kenobi."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunPlainError(t *testing.T) {
	fp := newFakePlayer("Hello there.", "General Kenobi.")
	p := &scriptedPlayer{fakePlayer: fp, script: []queue.Event{
		{Kind: queue.EventSentence, Index: 1, Total: 2, Sentence: fp.sentences[1]},
		{Kind: queue.EventWord, Index: 1, Total: 2, Word: tts.Boundary{CharIndex: 8}},
		{Kind: queue.EventError, Index: 1, Total: 2, Err: &tts.TTSError{Err: tts.ErrProviderUnavailable}},
	}}

	got, err := RunPlain(context.Background(), &bytes.Buffer{}, p, Config{StartIndex: 1})
	if !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if got != (Outcome{Index: 1, CharIndex: 8}) {
		t.Errorf("outcome = %+v, want 1, 8", got)
	}
}

func TestRunPlainCancel(t *testing.T) {
	fp := newFakePlayer("Hello there.")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := RunPlain(ctx, &bytes.Buffer{}, fp, Config{StartChar: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got != (Outcome{CharIndex: 3}) || fp.stops != 1 {
		t.Errorf("outcome = %+v stops = %d; want 0, 3 and one stop", got, fp.stops)
	}
}

func TestRunPlainOutOfRange(t *testing.T) {
	fp := newFakePlayer("Hello there.")
	_, err := RunPlain(context.Background(), &bytes.Buffer{}, fp, Config{StartIndex: 5})
	if !errors.Is(err, queue.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}
