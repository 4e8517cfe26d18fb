package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/ttsync/tts"
)

const maxBodyBytes = 1 << 20

type textRequest struct {
	Text string `json:"text"`
	// Gapless keeps the current audio playing until the new one is ready.
	Gapless bool `json:"gapless,omitempty"`
	// ResumeCharIndex starts speaking from the word at this byte offset.
	ResumeCharIndex *int `json:"resume_char_index,omitempty"`
}

// Settings are the adjustable speech parameters. Omitted fields are left
// unchanged by PUT /settings.
type Settings struct {
	Voice  *string  `json:"voice,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
	Pitch  *float64 `json:"pitch,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func decodeText(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	if !decode(w, r, &req) {
		return req, false
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, tts.ErrEmptyText.Error())
		return req, false
	}
	return req, true
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// probe checks the provider. ?reset=1 forgets a cached result first.
func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reset") == "1" {
		s.engine.ResetHealth()
	}
	writeJSON(w, http.StatusOK, s.engine.Probe(r.Context()))
}

func (s *Server) voices(w http.ResponseWriter, r *http.Request) {
	voices := s.engine.Voices()
	if len(voices) == 0 && s.engine.IsAvailable() {
		voices = s.engine.LoadVoices(r.Context())
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) speak(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	if req.ResumeCharIndex != nil {
		s.engine.SetResumeHint(*req.ResumeCharIndex)
	}
	if req.Gapless {
		s.engine.SpeakGapless(req.Text)
	} else {
		s.engine.Speak(req.Text)
	}
	writeJSON(w, http.StatusAccepted, s.engine.State())
}

func (s *Server) preload(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	if s.engine.IsPreloaded(req.Text) {
		writeJSON(w, http.StatusOK, map[string]bool{"cached": true})
		return
	}
	s.goBackground(func(ctx context.Context) { s.engine.Preload(ctx, req.Text) })
	writeJSON(w, http.StatusAccepted, map[string]bool{"cached": false})
}

func (s *Server) prepare(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeText(w, r)
	if !ok {
		return
	}
	s.engine.PrepareNext(req.Text)
	writeJSON(w, http.StatusAccepted, map[string]bool{"cached": s.engine.IsPreloaded(req.Text)})
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.State()
	if !st.CanPause() {
		writeError(w, http.StatusConflict, tts.ErrInvalidState.Error()+": "+st.CurrentState.String())
		return
	}
	s.engine.Pause()
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.State()
	if !st.CanResume() {
		writeError(w, http.StatusConflict, tts.ErrInvalidState.Error()+": "+st.CurrentState.String())
		return
	}
	s.engine.Resume()
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) cancel(w http.ResponseWriter, _ *http.Request) {
	s.engine.Cancel()
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) currentSettings() Settings {
	st := s.engine.State()
	return Settings{Voice: &st.Voice, Rate: &st.Rate, Pitch: &st.Pitch, Volume: &st.Volume}
}

func (s *Server) settings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSettings())
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if !decode(w, r, &req) {
		return
	}
	if err := ApplySettings(s.engine, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.currentSettings())
}

// ErrUnknownVoice is returned when a voice id is not in the engine's list.
var ErrUnknownVoice = errors.New("unknown voice")

// ApplySettings copies the set fields of st onto e. A voice must be one the
// engine knows about, unless the voice list has not been loaded.
func ApplySettings(e *tts.Engine, st Settings) error {
	if st.Voice != nil && *st.Voice != "" {
		known := e.Voices()
		if len(known) > 0 && !hasVoice(known, *st.Voice) {
			return fmt.Errorf("%w: %s", ErrUnknownVoice, *st.Voice)
		}
	}
	if st.Voice != nil {
		e.SetVoice(*st.Voice)
	}
	if st.Rate != nil {
		e.SetRate(*st.Rate)
	}
	if st.Pitch != nil {
		e.SetPitch(*st.Pitch)
	}
	if st.Volume != nil {
		e.SetVolume(*st.Volume)
	}
	return nil
}

func hasVoice(voices []tts.Voice, id string) bool {
	for _, v := range voices {
		if v.ID == id {
			return true
		}
	}
	return false
}
