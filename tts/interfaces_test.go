package tts

import "testing"

func TestSynthesisResultHasAudio(t *testing.T) {
	var nilResult *SynthesisResult
	tests := []struct {
		name string
		res  *SynthesisResult
		want bool
	}{
		{"nil", nilResult, false},
		{"empty", &SynthesisResult{MIMEType: "audio/mpeg"}, false},
		{"url", &SynthesisResult{AudioURL: "file:///tmp/a.wav"}, true},
		{"bytes", &SynthesisResult{Audio: []byte{1}}, true},
		{"base64", &SynthesisResult{AudioBase64: "AQ=="}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.HasAudio(); got != tt.want {
				t.Errorf("HasAudio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudioSourceIsZero(t *testing.T) {
	if !(AudioSource{}).IsZero() {
		t.Error("empty source should be zero")
	}
	if (AudioSource{URL: "http://x/a.mp3"}).IsZero() || (AudioSource{Blob: NewBlob(nil, "")}).IsZero() {
		t.Error("source with audio should not be zero")
	}
}

func TestRequestKey(t *testing.T) {
	a := SynthesisRequest{Text: "Hi.", Voice: "v", Rate: 1.5, Pitch: 1}
	b := a
	if a.Key() != b.Key() {
		t.Error("equal requests should share a key")
	}
	b.Rate = 1.25
	if a.Key() == b.Key() {
		t.Error("rate must be part of the key")
	}
}
