package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/ttsync/tts"
)

func TestSplitWord(t *testing.T) {
	tests := []struct {
		name                string
		text                string
		charIndex, length   int
		before, word, after string
	}{
		{"middle", "Hello brave world", 6, 5, "Hello ", "brave", " world"},
		{"start", "Hello brave world", 0, 5, "", "Hello", " brave world"},
		{"end", "Hello brave world", 12, 5, "Hello brave ", "world", ""},
		{"multibyte", "héllo wörld", 0, 6, "", "héllo", " wörld"},
		{"inside rune", "héllo", 2, 2, "héllo", "", ""},
		{"past end", "Hello", 3, 10, "Hello", "", ""},
		{"negative", "Hello", -1, 2, "Hello", "", ""},
		{"empty length", "Hello", 1, 0, "Hello", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, word, after := splitWord(tt.text, tt.charIndex, tt.length)
			if before != tt.before || word != tt.word || after != tt.after {
				t.Errorf("splitWord(%q, %d, %d) = %q, %q, %q; want %q, %q, %q",
					tt.text, tt.charIndex, tt.length, before, word, after, tt.before, tt.word, tt.after)
			}
		})
	}
}

func TestHighlightWordKeepsText(t *testing.T) {
	plain := lipgloss.NewStyle()
	got := highlightWord("Hello brave world", 6, 5, plain, plain)
	if got != "Hello brave world" {
		t.Errorf("highlightWord = %q", got)
	}
}

func TestParagraphs(t *testing.T) {
	sentences := []tts.Sentence{
		{Text: "One.", Start: 0, End: 20},
		{Text: "Two.", Start: 0, End: 20},
		{Text: "Three.", Start: 22, End: 30},
		{Text: "Four.", Start: 32, End: 50},
		{Text: "Five.", Start: 32, End: 50},
		{Text: "Six.", Start: 32, End: 50},
	}
	got := paragraphs(sentences)
	want := []paragraph{{0, 1}, {2, 2}, {3, 5}}
	if len(got) != len(want) {
		t.Fatalf("paragraphs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d = %v, want %v", i, got[i], want[i])
		}
	}

	// Sentences without a source range are never merged.
	loose := []tts.Sentence{{Text: "A."}, {Text: "B."}}
	if n := len(paragraphs(loose)); n != 2 {
		t.Errorf("loose paragraphs = %d, want 2", n)
	}
}

func TestDocumentRender(t *testing.T) {
	d := document{
		sentences: []tts.Sentence{
			{Text: "First one.", Start: 0, End: 21},
			{Text: "Second one.", Start: 0, End: 21},
			{Text: "Third paragraph here.", Start: 23, End: 44},
		},
		word: lipgloss.NewStyle(),
	}

	content, line := d.render(0, tts.Boundary{}, false)
	if line != 0 {
		t.Errorf("current line = %d, want 0", line)
	}
	for _, s := range d.sentences {
		if !strings.Contains(content, s.Text) {
			t.Errorf("content missing %q", s.Text)
		}
	}

	_, line = d.render(2, tts.Boundary{CharIndex: 6, CharLength: 9}, true)
	if line != 2 {
		t.Errorf("current line = %d, want 2", line)
	}

	d.width = 12
	content, line = d.render(2, tts.Boundary{}, false)
	if line < 3 {
		t.Errorf("wrapped current line = %d, want past the wrapped first paragraph", line)
	}
	for _, l := range strings.Split(content, "\n") {
		if w := lipgloss.Width(l); w > 12 {
			t.Errorf("line %q is %d wide", l, w)
		}
	}
}
