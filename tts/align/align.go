// Package align maps provider word-boundary events onto byte ranges of the
// text that was spoken.
//
// Providers report the words they spoke with millisecond offsets, but the
// reported words drift from the source: punctuation is stripped, quotes are
// changed, case differs. Align searches a normalized projection of the source
// (lowercase letters, digits, apostrophes, hyphens and single spaces) and maps
// every match back to the original string through an index map.
package align

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Event is a provider word boundary.
type Event struct {
	Text     string `json:"text"`
	OffsetMs int64  `json:"offset_ms"`
}

// Entry is an aligned boundary: text[CharIndex:CharIndex+CharLength] is the
// spoken word. CharLength is zero when the word could not be located.
type Entry struct {
	OffsetMs   int64 `json:"offset_ms"`
	CharIndex  int   `json:"char_index"`
	CharLength int   `json:"char_length"`
}

// End returns the byte offset just past the entry's range.
func (e Entry) End() int { return e.CharIndex + e.CharLength }

// projection is the normalized view of a source string. starts[i] and ends[i]
// are the byte range of the original rune that produced text[i].
type projection struct {
	text   string
	starts []int
	ends   []int
}

func project(src string) projection {
	var (
		b      strings.Builder
		starts = make([]int, 0, len(src))
		ends   = make([]int, 0, len(src))
		space  bool
	)
	b.Grow(len(src))

	for i, r := range src {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = 1
		}
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
				starts = append(starts, i)
				ends = append(ends, i+size)
				space = true
			}
			continue
		}
		c := fold(r)
		if !keep(c) {
			continue
		}
		space = false
		b.WriteRune(c)
		starts = append(starts, i)
		ends = append(ends, i+size)
	}

	return projection{text: b.String(), starts: starts, ends: ends}
}

// NormalizeWord applies the projection rules to a single provider token.
// Characters outside the kept set become spaces; the result is collapsed
// and trimmed.
func NormalizeWord(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range word {
		c := fold(r)
		if keep(c) {
			b.WriteRune(c)
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// fold lowercases r, straightens curly apostrophes and strips diacritics
// from Latin letters.
func fold(r rune) rune {
	if r == '’' || r == '‘' {
		return '\''
	}
	r = unicode.ToLower(r)
	if r < utf8.RuneSelf {
		return r
	}
	d := norm.NFD.String(string(r))
	if base, _ := utf8.DecodeRuneInString(d); base < utf8.RuneSelf {
		return base
	}
	return r
}

func keep(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\'' || r == '-'
}

// Align produces one Entry per event, sorted by offset. Matching is
// sequential: the search cursor only moves forward, so a miss never pulls
// later words back. A miss reuses the previous CharIndex with zero length.
func Align(events []Event, text string) []Entry {
	if len(events) == 0 {
		return nil
	}

	p := project(text)
	entries := make([]Entry, 0, len(events))
	cursor := 0
	last := 0

	for _, ev := range events {
		entry := Entry{OffsetMs: max(ev.OffsetMs, 0), CharIndex: last}

		word := NormalizeWord(ev.Text)
		if word != "" && p.text != "" && cursor < len(p.text) {
			if idx := strings.Index(p.text[cursor:], word); idx >= 0 {
				start := cursor + idx
				end := start + len(word) - 1
				entry.CharIndex = p.starts[start]
				entry.CharLength = p.ends[end] - p.starts[start]
				last = entry.CharIndex
				cursor = end + 1
			}
		}

		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OffsetMs < entries[j].OffsetMs
	})
	return entries
}

// FindResumeEntry returns the index of the entry a resume at byte offset
// charIndex should start from: the first entry whose range ends beyond
// charIndex or starts at or after it, else the last entry. It returns -1 for
// an empty table.
func FindResumeEntry(entries []Entry, charIndex int) int {
	if len(entries) == 0 {
		return -1
	}
	charIndex = max(charIndex, 0)
	for i, e := range entries {
		if charIndex < e.End() || e.CharIndex >= charIndex {
			return i
		}
	}
	return len(entries) - 1
}
