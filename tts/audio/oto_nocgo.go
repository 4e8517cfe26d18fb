//go:build nocgo
// +build nocgo

package audio

import (
	"errors"

	"github.com/dgnsrekt/ttsync/tts"
)

// Channels of the shared output context.
const Channels = 1

// ErrNoAudioOutput is returned by sink factories in builds without cgo.
var ErrNoAudioOutput = errors.New("audio output not available in nocgo build")

// NewOtoSinkFactory returns a factory that always fails; use MockSink or
// a cgo build for sound.
func NewOtoSinkFactory(tts.PlaybackConfig) tts.SinkFactory {
	return func() (tts.AudioSink, error) {
		return nil, ErrNoAudioOutput
	}
}
