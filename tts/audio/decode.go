// Package audio turns synthesized audio into sound. It decodes MP3 and WAV
// payloads into PCM, converts them to the output format and plays them
// through oto. MockSink is a clock-driven sink for tests and headless runs.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Decoding errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidWAV        = errors.New("invalid wav data")
	ErrEmptyAudio        = errors.New("empty audio data")
)

// BytesPerSample of 16-bit PCM.
const BytesPerSample = 2

// PCM is signed 16-bit little-endian interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// frameSize is the size in bytes of one sample for every channel.
func (p PCM) frameSize() int {
	return BytesPerSample * max(p.Channels, 1)
}

// Duration returns the playing time of p.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	frames := len(p.Data) / p.frameSize()
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Offset returns the frame-aligned byte offset of d, clamped to the data.
func (p PCM) Offset(d time.Duration) int64 {
	if d <= 0 || p.SampleRate <= 0 {
		return 0
	}
	frames := int64(d) * int64(p.SampleRate) / int64(time.Second)
	off := frames * int64(p.frameSize())
	return min(off, int64(len(p.Data)))
}

// Position converts a byte offset into a playing time.
func (p PCM) Position(offset int64) time.Duration {
	if p.SampleRate <= 0 || offset <= 0 {
		return 0
	}
	frames := offset / int64(p.frameSize())
	return time.Duration(frames) * time.Second / time.Duration(p.SampleRate)
}

// Decode converts an encoded payload to PCM. The format is taken from the
// MIME type and, when that is missing or generic, from the payload header.
func Decode(data []byte, mimeType string) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, ErrEmptyAudio
	}

	media, params, _ := mime.ParseMediaType(mimeType)
	switch media {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return decodeWAV(data)
	case "audio/mpeg", "audio/mp3":
		if isWAV(data) {
			return decodeWAV(data)
		}
		return decodeMP3(data)
	case "audio/l16", "audio/pcm":
		return rawPCM(data, params)
	}

	switch {
	case isWAV(data):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	}
	return PCM{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("mp3: %w", err)
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3: %w", err)
	}
	if len(out) == 0 {
		return PCM{}, ErrEmptyAudio
	}
	// go-mp3 always produces 16-bit stereo
	return PCM{Data: out, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

func decodeWAV(data []byte) (PCM, error) {
	if !isWAV(data) {
		return PCM{}, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}

	var (
		p      PCM
		bits   uint16
		format uint16
		gotFmt bool
	)
	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			// tolerate a truncated final data chunk
			if id != "data" {
				return PCM{}, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
			}
			size = len(rest)
		}
		body := rest[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return PCM{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			p.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			p.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = binary.LittleEndian.Uint16(body[14:16])
			gotFmt = true
		case "data":
			if !gotFmt {
				return PCM{}, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			p.Data = body
		}

		// chunks are word aligned
		if size%2 == 1 && size < len(rest) {
			size++
		}
		rest = rest[size:]
	}

	switch {
	case !gotFmt:
		return PCM{}, fmt.Errorf("%w: no fmt chunk", ErrInvalidWAV)
	case format != 1 || bits != 16:
		return PCM{}, fmt.Errorf("%w: only 16-bit PCM is supported (format %d, %d bits)", ErrUnsupportedFormat, format, bits)
	case p.Channels < 1 || p.SampleRate <= 0:
		return PCM{}, fmt.Errorf("%w: bad channel count or sample rate", ErrInvalidWAV)
	case len(p.Data) == 0:
		return PCM{}, ErrEmptyAudio
	}
	p.Data = p.Data[:len(p.Data)-len(p.Data)%p.frameSize()]
	return p, nil
}

func rawPCM(data []byte, params map[string]string) (PCM, error) {
	p := PCM{Data: data, SampleRate: 24000, Channels: 1}
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		p.SampleRate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
		p.Channels = v
	}
	p.Data = p.Data[:len(p.Data)-len(p.Data)%p.frameSize()]
	if len(p.Data) == 0 {
		return PCM{}, ErrEmptyAudio
	}
	return p, nil
}

// EncodeWAV wraps p in a minimal RIFF/WAVE container.
func EncodeWAV(p PCM) []byte {
	var buf bytes.Buffer
	blockAlign := p.frameSize()
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(p.Data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(p.Channels))
	w(uint32(p.SampleRate))
	w(uint32(p.SampleRate * blockAlign))
	w(uint16(blockAlign))
	w(uint16(16))
	buf.WriteString("data")
	w(uint32(len(p.Data)))
	buf.Write(p.Data)
	return buf.Bytes()
}

// Silence returns d of silent audio.
func Silence(d time.Duration, sampleRate, channels int) PCM {
	p := PCM{SampleRate: sampleRate, Channels: channels}
	frames := int64(d) * int64(sampleRate) / int64(time.Second)
	p.Data = make([]byte, frames*int64(p.frameSize()))
	return p
}

// Convert resamples p to sampleRate and mixes it to channels using linear
// interpolation.
func Convert(p PCM, sampleRate, channels int) PCM {
	if p.SampleRate == sampleRate && p.Channels == channels {
		return p
	}

	in := samples(p)
	inFrames := len(in) / max(p.Channels, 1)
	if inFrames == 0 {
		return PCM{SampleRate: sampleRate, Channels: channels}
	}

	ratio := float64(sampleRate) / float64(p.SampleRate)
	outFrames := int(float64(inFrames) * ratio)
	out := make([]byte, outFrames*channels*BytesPerSample)

	frame := func(i int) float64 {
		// mix every input channel down, then fan out
		var sum float64
		for ch := 0; ch < p.Channels; ch++ {
			sum += float64(in[i*p.Channels+ch])
		}
		return sum / float64(p.Channels)
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)

		var v float64
		if idx >= inFrames-1 {
			v = frame(inFrames - 1)
		} else {
			v = frame(idx)*(1-frac) + frame(idx+1)*frac
		}

		s := uint16(int16(v))
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * BytesPerSample
			binary.LittleEndian.PutUint16(out[off:], s)
		}
	}
	return PCM{Data: out, SampleRate: sampleRate, Channels: channels}
}

func samples(p PCM) []int16 {
	n := len(p.Data) / BytesPerSample
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p.Data[i*BytesPerSample:]))
	}
	return out
}
