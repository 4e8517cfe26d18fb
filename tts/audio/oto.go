//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/ttsync/tts"
)

// Channels of the shared output context.
const Channels = 1

// monitorInterval is how often a playing sink checks for the end of audio.
const monitorInterval = 20 * time.Millisecond

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

// outputContext returns the process-wide oto context. oto allows one
// context per process, so the first caller's settings win.
func outputContext(cfg tts.PlaybackConfig) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		opts := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferSize,
		}
		if opts.BufferSize == 0 && runtime.GOOS == "darwin" {
			// CoreAudio underruns with the default buffer
			opts.BufferSize = 100 * time.Millisecond
		}

		log.Debug("Initializing audio output",
			"sample_rate", opts.SampleRate,
			"buffer", opts.BufferSize,
			"os", runtime.GOOS)

		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			otoErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, cfg.SampleRate
	})
	return otoCtx, otoRate, otoErr
}

// NewOtoSinkFactory returns a factory of sinks playing through the system
// audio device.
func NewOtoSinkFactory(cfg tts.PlaybackConfig) tts.SinkFactory {
	return func() (tts.AudioSink, error) {
		ctx, rate, err := outputContext(cfg)
		if err != nil {
			return nil, err
		}
		return newOtoSink(ctx, rate), nil
	}
}

// trackingReader counts the bytes oto has pulled from the PCM data.
type trackingReader struct {
	mu     sync.Mutex
	reader *bytes.Reader
	pos    atomic.Int64
}

func (r *trackingReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.reader.Read(p)
	r.pos.Add(int64(n))
	return n, err
}

func (r *trackingReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, err := r.reader.Seek(offset, whence)
	if err == nil {
		r.pos.Store(pos)
	}
	return pos, err
}

// OtoSink plays one source at a time through oto.
type OtoSink struct {
	ctx    *oto.Context
	rate   int
	notify *notifier

	mu       sync.Mutex
	listener tts.SinkListener
	gen      uint64
	pcm      PCM
	reader   *trackingReader
	player   *oto.Player
	playing  bool
	volume   float64
	stopMon  chan struct{}
	closed   bool
}

func newOtoSink(ctx *oto.Context, rate int) *OtoSink {
	return &OtoSink{ctx: ctx, rate: rate, notify: newNotifier(), volume: 1}
}

// SetSource decodes src and loads it. Decoding happens synchronously, so the
// sink is Ready when it returns; the metadata callback follows on the sink
// goroutine.
func (s *OtoSink) SetSource(src tts.AudioSource) error {
	data, mimeType, err := Load(context.Background(), src)
	if err != nil {
		return err
	}
	pcm, err := Decode(data, mimeType)
	if err != nil {
		return err
	}
	pcm = Convert(pcm, s.rate, Channels)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sink closed")
	}

	s.unloadLocked()
	s.pcm = pcm
	s.reader = &trackingReader{reader: bytes.NewReader(pcm.Data)}
	s.player = s.ctx.NewPlayer(s.reader)
	s.player.SetVolume(s.volume)

	gen := s.gen
	d := pcm.Duration()
	s.postLocked(gen, func(l tts.SinkListener) {
		if l.OnMetadata != nil {
			l.OnMetadata(d)
		}
	})
	return nil
}

func (s *OtoSink) SetListener(l tts.SinkListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Play starts the player. oto starts synchronously, so done is called
// before Play returns.
func (s *OtoSink) Play(done func(error)) {
	s.mu.Lock()
	if s.player == nil {
		s.mu.Unlock()
		done(errors.New("no source loaded"))
		return
	}
	if err := s.player.Err(); err != nil {
		s.mu.Unlock()
		done(err)
		return
	}
	s.player.Play()
	s.playing = true
	if s.stopMon == nil {
		s.stopMon = make(chan struct{})
		go s.monitor(s.gen, s.player, s.reader, s.stopMon)
	}
	s.mu.Unlock()

	done(nil)
}

func (s *OtoSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
	s.playing = false
}

// Stop halts playback and unloads the source.
func (s *OtoSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
}

func (s *OtoSink) unloadLocked() {
	s.gen++
	if s.stopMon != nil {
		close(s.stopMon)
		s.stopMon = nil
	}
	if s.player != nil {
		s.player.Pause()
		_ = s.player.Close()
		s.player = nil
	}
	s.reader = nil
	s.pcm = PCM{}
	s.playing = false
}

func (s *OtoSink) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return errors.New("no source loaded")
	}
	_, err := s.player.Seek(s.pcm.Offset(pos), io.SeekStart)
	return err
}

// Position is the audible position: bytes read by oto minus what it still
// buffers.
func (s *OtoSink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return 0
	}
	off := s.reader.pos.Load() - int64(s.player.BufferedSize())
	return s.pcm.Position(off)
}

func (s *OtoSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil
}

func (s *OtoSink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	if s.player != nil {
		s.player.SetVolume(v)
	}
}

func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.unloadLocked()
	s.notify.close()
	return nil
}

// postLocked queues a listener callback for the listener installed now. It
// is dropped if the source changes before it runs; a listener installed
// later never sees it.
func (s *OtoSink) postLocked(gen uint64, fn func(tts.SinkListener)) {
	l := s.listener
	s.notify.post(func() {
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if !stale {
			fn(l)
		}
	})
}

func (s *OtoSink) monitor(gen uint64, p *oto.Player, r *trackingReader, stop <-chan struct{}) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		if err := p.Err(); err != nil {
			s.playing = false
			s.stopMon = nil
			s.postLocked(gen, func(l tts.SinkListener) {
				if l.OnError != nil {
					l.OnError(err)
				}
			})
			s.mu.Unlock()
			return
		}
		finished := s.playing && !p.IsPlaying() && r.pos.Load() >= int64(len(s.pcm.Data))
		if finished {
			s.playing = false
			s.stopMon = nil
			s.postLocked(gen, func(l tts.SinkListener) {
				if l.OnEnded != nil {
					l.OnEnded()
				}
			})
		}
		s.mu.Unlock()
		if finished {
			return
		}
	}
}
