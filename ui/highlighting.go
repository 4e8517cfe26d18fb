package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/ttsync/tts"
)

// splitWord cuts text around the byte range [charIndex, charIndex+length).
// Out of range or misaligned offsets yield no word.
func splitWord(text string, charIndex, length int) (before, word, after string) {
	end := charIndex + length
	if charIndex < 0 || length <= 0 || end > len(text) ||
		!utf8.RuneStart(text[charIndex]) || (end < len(text) && !utf8.RuneStart(text[end])) {
		return text, "", ""
	}
	return text[:charIndex], text[charIndex:end], text[end:]
}

// highlightWord renders text in base with the word at charIndex in word.
func highlightWord(text string, charIndex, length int, base, word lipgloss.Style) string {
	before, w, after := splitWord(text, charIndex, length)
	if w == "" {
		return base.Render(text)
	}
	var b strings.Builder
	if before != "" {
		b.WriteString(base.Render(before))
	}
	b.WriteString(word.Render(w))
	if after != "" {
		b.WriteString(base.Render(after))
	}
	return b.String()
}

// paragraph groups the sentences that came from one block of the document.
type paragraph struct {
	first, last int
}

func paragraphs(sentences []tts.Sentence) []paragraph {
	var out []paragraph
	for i, s := range sentences {
		if n := len(out); n > 0 && sentences[out[n-1].last].Start == s.Start && s.Start != s.End {
			out[n-1].last = i
			continue
		}
		out = append(out, paragraph{first: i, last: i})
	}
	return out
}

// document lays out a playlist's sentences for the viewport.
type document struct {
	sentences []tts.Sentence
	width     int
	word      lipgloss.Style
}

// render wraps the sentences into paragraphs. Sentences before current are
// dimmed, the current one is bold with the active word highlighted. It
// returns the content and the line the current paragraph starts on.
func (d document) render(current int, active tts.Boundary, haveWord bool) (string, int) {
	var b strings.Builder
	currentLine := 0
	lines := 0

	for pi, p := range paragraphs(d.sentences) {
		if pi > 0 {
			b.WriteString("\n\n")
			lines += 2
		}
		if current >= p.first && current <= p.last {
			currentLine = lines
		}

		parts := make([]string, 0, p.last-p.first+1)
		for i := p.first; i <= p.last; i++ {
			text := d.sentences[i].Text
			switch {
			case i < current:
				parts = append(parts, spokenStyle.Render(text))
			case i == current && haveWord:
				parts = append(parts, highlightWord(text, active.CharIndex, active.CharLength, currentStyle, d.word))
			case i == current:
				parts = append(parts, currentStyle.Render(text))
			default:
				parts = append(parts, text)
			}
		}

		par := strings.Join(parts, " ")
		if d.width > 0 {
			par = wordwrap.String(par, d.width)
		}
		b.WriteString(par)
		lines += strings.Count(par, "\n")
	}
	return b.String(), currentLine
}
