package sentence

import (
	"strings"
	"testing"
	"time"
)

func texts(markdown string) []string {
	var out []string
	for _, s := range NewParser().Parse(markdown) {
		out = append(out, s.Text)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParsePlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "simple sentences",
			input:    "Hello world. How are you? I'm fine!",
			expected: []string{"Hello world.", "How are you?", "I'm fine!"},
		},
		{
			name:     "soft line breaks",
			input:    "First sentence.\nSecond sentence.\nThird sentence.",
			expected: []string{"First sentence.", "Second sentence.", "Third sentence."},
		},
		{
			name:     "multiple spaces",
			input:    "First one.  Second one.   Third one.",
			expected: []string{"First one.", "Second one.", "Third one."},
		},
		{
			name:     "ellipsis",
			input:    "Wait... I'm thinking. Done!",
			expected: []string{"Wait... I'm thinking.", "Done!"},
		},
		{
			name:     "mixed punctuation",
			input:    "Really? Yes! Of course. Why not?!",
			expected: []string{"Really?", "Yes!", "Of course.", "Why not?!"},
		},
		{
			name:     "quotes",
			input:    `She said "Hello." Then she left.`,
			expected: []string{`She said "Hello."`, "Then she left."},
		},
		{
			name:     "no terminal punctuation",
			input:    "Just a fragment",
			expected: []string{"Just a fragment"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := texts(tt.input); !equal(got, tt.expected) {
				t.Errorf("Parse() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseAbbreviationsAndNumbers(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Dr. Smith arrived. He sat down.", []string{"Dr. Smith arrived.", "He sat down."}},
		{"Pi is 3.14 roughly. Next.", []string{"Pi is 3.14 roughly.", "Next."}},
		{"Use a tool, e.g. a hammer. Then stop.", []string{"Use a tool, e.g. a hammer.", "Then stop."}},
		{"Visit example.com today. Bye now.", []string{"Visit example.com today.", "Bye now."}},
		{"Written by J. R. R. Tolkien. Great book.", []string{"Written by J. R. R. Tolkien.", "Great book."}},
	}

	for _, tt := range tests {
		if got := texts(tt.input); !equal(got, tt.expected) {
			t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseMarkdown(t *testing.T) {
	doc := strings.Join([]string{
		"# Getting Started",
		"",
		"This is **bold** and *italic* text. See [the docs](https://example.com) now.",
		"",
		"```go",
		"fmt.Println(\"not spoken.\")",
		"```",
		"",
		"- First item",
		"- Second item with `code` inside",
		"",
		"> A quoted line.",
		"",
		"<div>raw html.</div>",
		"",
		"---",
		"",
		"![logo](logo.png) Last words.",
	}, "\n")

	want := []string{
		"Getting Started",
		"This is bold and italic text.",
		"See the docs now.",
		"First item",
		"Second item with inside",
		"A quoted line.",
		"Last words.",
	}
	if got := texts(doc); !equal(got, want) {
		t.Errorf("Parse() =\n%q\nwant\n%q", got, want)
	}
}

func TestParseOffsets(t *testing.T) {
	doc := "Intro paragraph. Second sentence.\n\n## Heading\n\nTail."
	sentences := NewParser().Parse(doc)
	if len(sentences) != 4 {
		t.Fatalf("got %d sentences", len(sentences))
	}

	for i, s := range sentences {
		if s.Index != i {
			t.Errorf("sentence %d has Index %d", i, s.Index)
		}
		if s.Start < 0 || s.End > len(doc) || s.Start > s.End {
			t.Fatalf("sentence %d range [%d,%d) out of bounds", i, s.Start, s.End)
		}
		if doc[s.Start:s.End] != s.Markdown {
			t.Errorf("sentence %d markdown %q does not match its range", i, s.Markdown)
		}
		if s.Duration <= 0 {
			t.Errorf("sentence %d has no duration", i)
		}
	}

	if sentences[0].Markdown != "Intro paragraph. Second sentence." {
		t.Errorf("first block = %q", sentences[0].Markdown)
	}
	if sentences[0].Start != sentences[1].Start {
		t.Error("sentences of one paragraph share the block range")
	}
	if sentences[2].Markdown != "Heading" {
		t.Errorf("heading block = %q", sentences[2].Markdown)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, input := range []string{"", "   \n\n  ", "```\ncode only.\n```"} {
		if got := NewParser().Parse(input); len(got) != 0 {
			t.Errorf("Parse(%q) = %v, want none", input, got)
		}
	}
}

func TestParseUnicode(t *testing.T) {
	got := texts("Café au lait. Naïve résumé! ¿Qué tal?")
	want := []string{"Café au lait.", "Naïve résumé!", "¿Qué tal?"}
	if !equal(got, want) {
		t.Errorf("Parse() = %q, want %q", got, want)
	}
}

func TestEstimateDuration(t *testing.T) {
	p := NewParser()

	short := p.EstimateDuration("One two three.")
	long := p.EstimateDuration("One two three four five six seven eight nine ten.")
	if short >= long {
		t.Errorf("more words should take longer: %v >= %v", short, long)
	}

	// 150 words per minute with no complexity
	if got := p.EstimateDuration("one two three four five"); got != 2*time.Second {
		t.Errorf("EstimateDuration() = %v, want 2s", got)
	}

	plain := p.EstimateDuration("alpha beta gamma delta")
	dense := p.EstimateDuration("alpha, 12 beta; 34 gamma: delta")
	if dense <= plain {
		t.Errorf("numbers and punctuation should slow speech: %v <= %v", dense, plain)
	}

	if p.EstimateDuration("") <= 0 {
		t.Error("empty text still takes a moment")
	}
}
