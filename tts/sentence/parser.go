// Package sentence splits markdown documents into speakable sentences.
//
// Markdown is parsed with goldmark; code blocks, raw HTML, images and bare
// URLs are dropped, and the remaining inline text of every paragraph,
// heading and list item is split at sentence ends. Abbreviations, decimal
// numbers and ellipses do not end a sentence.
package sentence

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgnsrekt/ttsync/tts"
)

var (
	numberRegex      = regexp.MustCompile(`\d+`)
	punctuationRegex = regexp.MustCompile(`[,;:\-()]`)
)

// Parser extracts sentences from markdown content.
type Parser struct {
	md            goldmark.Markdown
	minLength     int
	wordsPerMin   float64
	abbreviations map[string]bool
}

// NewParser creates a parser with the default abbreviation list.
func NewParser() *Parser {
	return &Parser{
		md:            goldmark.New(),
		minLength:     2,
		wordsPerMin:   150,
		abbreviations: makeAbbreviationMap(),
	}
}

// block is the plain text of one markdown block and its source range.
type block struct {
	text       string
	start, end int
}

// Parse extracts sentences from markdown content. Start and End of each
// sentence are the byte range of its block in markdown.
func (p *Parser) Parse(markdown string) []tts.Sentence {
	src := []byte(markdown)
	var sentences []tts.Sentence

	for _, b := range p.blocks(src) {
		for _, r := range p.split(b.text) {
			s := strings.TrimSpace(b.text[r.start:r.end])
			if len(s) < p.minLength {
				continue
			}
			sentences = append(sentences, tts.Sentence{
				Index:    len(sentences),
				Text:     s,
				Markdown: markdown[b.start:b.end],
				Start:    b.start,
				End:      b.end,
				Duration: p.EstimateDuration(s),
			})
		}
	}
	return sentences
}

func (p *Parser) blocks(src []byte) []block {
	doc := p.md.Parser().Parse(text.NewReader(src))

	var out []block
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindThematicBreak:
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock:
			var sb strings.Builder
			inlineText(&sb, n, src)
			plain := strings.Join(strings.Fields(sb.String()), " ")
			if plain == "" {
				return ast.WalkSkipChildren, nil
			}
			b := block{text: plain}
			if lines := n.Lines(); lines.Len() > 0 {
				b.start = lines.At(0).Start
				b.end = lines.At(lines.Len() - 1).Stop
			}
			out = append(out, b)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

// inlineText writes the speakable text below n.
func inlineText(sb *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(v.Value)
		case *ast.CodeSpan, *ast.AutoLink, *ast.RawHTML, *ast.Image:
			// not spoken
		default:
			inlineText(sb, c, src)
		}
	}
}

// EstimateDuration estimates the speaking duration for text.
func (p *Parser) EstimateDuration(s string) time.Duration {
	words := len(strings.Fields(s))
	if words == 0 {
		words = 1
	}

	// slow down for numbers, punctuation and long words
	rate := p.wordsPerMin * (1.0 - complexity(s)*0.2)
	seconds := float64(words) * 60.0 / rate
	return time.Duration(seconds * float64(time.Second))
}

func complexity(s string) float64 {
	c := float64(len(numberRegex.FindAllString(s, -1))) * 0.02
	c += float64(len(punctuationRegex.FindAllString(s, -1))) * 0.01

	words := strings.Fields(s)
	long := 0
	for _, w := range words {
		if len(w) > 10 {
			long++
		}
	}
	c += float64(long) / float64(len(words)+1) * 0.1

	return min(c, 0.5)
}

// span is a byte range of a block's text.
type span struct {
	start, end int
}

// split finds sentence ranges in s.
func (p *Parser) split(s string) []span {
	runes := []rune(s)
	var out []span
	last := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}
		if !p.isSentenceEnd(runes, i) {
			i = end - 1
			continue
		}

		out = append(out, span{last, end})
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		last = end
		i = end - 1
	}
	if last < len(runes) && strings.TrimSpace(string(runes[last:])) != "" {
		out = append(out, span{last, len(runes)})
	}

	// rune indexes to byte offsets
	for i := range out {
		out[i].start = len(string(runes[:out[i].start]))
		out[i].end = len(string(runes[:out[i].end]))
	}
	return out
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

// isSentenceEnd reports whether the punctuation run starting at pos ends a
// sentence.
func (p *Parser) isSentenceEnd(runes []rune, pos int) bool {
	punct := runes[pos]

	// run of punctuation, then closers
	next := pos + 1
	for next < len(runes) && isTerminal(runes[next]) {
		next++
	}
	ellipsis := next-pos >= 3 && punct == '.'
	for next < len(runes) && isCloser(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[next]) || ellipsis {
		// 3.14, example.com, "wait... what"
		return false
	}

	if punct == '.' {
		start := pos - 1
		for start >= 0 && !unicode.IsSpace(runes[start]) {
			start--
		}
		word := strings.ToLower(string(runes[start+1 : pos]))
		word = strings.TrimLeft(word, "\"'(“‘[")
		if p.abbreviations[word] {
			return false
		}
		// U.S. or Ph.D.
		if strings.Contains(word, ".") {
			return false
		}
		// initials such as "J. R. R. Tolkien"
		if r := []rune(word); len(r) == 1 && unicode.IsLetter(r[0]) && unicode.IsUpper(runes[pos-1]) {
			return false
		}
	}

	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}
	following := runes[next]
	switch {
	case unicode.IsUpper(following), unicode.IsDigit(following), !unicode.IsLetter(following):
		return true
	case punct == '!' || punct == '?':
		return true
	}
	return false
}

func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st",
		"llc", "inc", "ltd", "co", "corp",
		"etc", "vs", "cf", "al", "approx", "no", "vol", "fig",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"rd", "ave", "blvd", "ln", "ct",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi", "yd",
		"hr", "hrs", "min", "mins", "sec", "secs",
	}
	m := make(map[string]bool, len(abbrevs))
	for _, a := range abbrevs {
		m[a] = true
	}
	return m
}
