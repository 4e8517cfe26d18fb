// Package engines provides synthesis providers and provider decorators.
//
// Concrete providers live in subpackages (mock, exec, openai). This package
// holds what they share: boundary estimation for providers that return no
// word timings, a fallback wrapper and a persistent caching wrapper.
package engines

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/ttsync/tts"
)

// DefaultWordsPerMinute is the speaking speed assumed at rate 1.0.
const DefaultWordsPerMinute = 170

// EstimateBoundaries spreads the words of text over the time it takes to
// speak them at wordsPerMinute scaled by rate. Longer words and words
// followed by punctuation take proportionally longer. It returns the
// boundaries and the estimated total duration.
func EstimateBoundaries(text string, rate float64, wordsPerMinute int) ([]tts.BoundaryEvent, time.Duration) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, 0
	}
	if rate <= 0 {
		rate = 1
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}

	total := time.Duration(float64(len(words)) * float64(time.Minute) / (float64(wordsPerMinute) * rate))

	weights := make([]int, len(words))
	sum := 0
	for i, w := range words {
		weights[i] = wordWeight(w)
		sum += weights[i]
	}

	events := make([]tts.BoundaryEvent, len(words))
	elapsed := 0
	for i, w := range words {
		offset := time.Duration(float64(total) * float64(elapsed) / float64(sum))
		events[i] = tts.BoundaryEvent{Text: w, OffsetMs: offset.Milliseconds()}
		elapsed += weights[i]
	}
	return events, total
}

// wordWeight is the relative time a word takes, including the pause after
// it.
func wordWeight(w string) int {
	weight := utf8.RuneCountInString(w) + 1
	last, _ := utf8.DecodeLastRuneInString(w)
	switch last {
	case ',', ';', ':':
		weight += 3
	case '.', '!', '?':
		weight += 6
	}
	return weight
}
