package piper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsync/tts"
)

// fakePiper writes 0.5s of 16 kHz PCM and records its arguments.
const fakePiper = `#!/bin/sh
echo "$@" > "$(dirname "$0")/args"
cat > /dev/null
head -c 16000 /dev/zero
`

func setup(t *testing.T, script string) (tts.PiperConfig, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "piper")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	models := filepath.Join(dir, "models")
	if err := os.Mkdir(models, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"en_US-lessac-medium.onnx", "de_DE-thorsten-low.onnx"} {
		if err := os.WriteFile(filepath.Join(models, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	meta := `{"audio":{"sample_rate":16000}}`
	if err := os.WriteFile(filepath.Join(models, "en_US-lessac-medium.onnx.json"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}

	return tts.PiperConfig{
		Binary:   bin,
		Model:    filepath.Join(models, "en_US-lessac-medium.onnx"),
		ModelDir: models,
		Timeout:  5 * time.Second,
	}, dir
}

func TestVoices(t *testing.T) {
	cfg, _ := setup(t, fakePiper)
	p := New(cfg, nil)

	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2: %+v", len(voices), voices)
	}
	first := voices[0]
	if first.ID != "en_US-lessac-medium" || first.Language != "en-US" || first.Name != "lessac (medium)" || !first.Default {
		t.Errorf("first voice = %+v", first)
	}
	if voices[1].ID != "de_DE-thorsten-low" || voices[1].Default {
		t.Errorf("second voice = %+v", voices[1])
	}
}

func TestSynthesize(t *testing.T) {
	cfg, dir := setup(t, fakePiper)
	p := New(cfg, nil)

	res, err := p.Synthesize(context.Background(), tts.SynthesisRequest{Text: "Hello there world.", Rate: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Audio) != 16000 {
		t.Errorf("audio length = %d", len(res.Audio))
	}
	if res.MIMEType != "audio/L16; rate=16000; channels=1" {
		t.Errorf("mime = %q", res.MIMEType)
	}
	if len(res.Boundaries) != 3 || res.Boundaries[0].OffsetMs != 0 {
		t.Fatalf("boundaries = %+v", res.Boundaries)
	}
	if last := res.Boundaries[2].OffsetMs; last <= 0 || last >= 500 {
		t.Errorf("last boundary at %dms, want inside the 500ms of audio", last)
	}

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(args), "--output-raw") || !strings.Contains(string(args), "--length_scale 0.500") {
		t.Errorf("args = %q", args)
	}
}

func TestSynthesizeSelectsVoice(t *testing.T) {
	cfg, dir := setup(t, fakePiper)
	p := New(cfg, nil)

	res, err := p.Synthesize(context.Background(), tts.SynthesisRequest{Text: "Hallo.", Voice: "de_DE-thorsten-low", Rate: 1})
	if err != nil {
		t.Fatal(err)
	}
	// no JSON next to this model, so the configured default rate applies
	if res.MIMEType != "audio/L16; rate=22050; channels=1" {
		t.Errorf("mime = %q", res.MIMEType)
	}
	args, _ := os.ReadFile(filepath.Join(dir, "args"))
	if !strings.Contains(string(args), "de_DE-thorsten-low.onnx") || strings.Contains(string(args), "length_scale") {
		t.Errorf("args = %q", args)
	}
}

func TestSynthesizeFailures(t *testing.T) {
	cfg, _ := setup(t, "#!/bin/sh\ncat > /dev/null\necho 'model load failed' >&2\nexit 3\n")
	_, err := New(cfg, nil).Synthesize(context.Background(), tts.SynthesisRequest{Text: "Hi."})
	if err == nil || !strings.Contains(err.Error(), "model load failed") {
		t.Errorf("error = %v", err)
	}

	cfg, _ = setup(t, "#!/bin/sh\ncat > /dev/null\n")
	_, err = New(cfg, nil).Synthesize(context.Background(), tts.SynthesisRequest{Text: "Hi."})
	if !errors.Is(err, ErrNoAudio) {
		t.Errorf("empty output error = %v", err)
	}

	cfg, _ = setup(t, fakePiper)
	cfg.Model, cfg.ModelDir = "", ""
	_, err = New(cfg, nil).Synthesize(context.Background(), tts.SynthesisRequest{Text: "Hi."})
	if !errors.Is(err, ErrNoModel) {
		t.Errorf("no model error = %v", err)
	}
}

func TestProbe(t *testing.T) {
	cfg, _ := setup(t, fakePiper)
	ctx := context.Background()

	res, err := New(cfg, nil).Probe(ctx, tts.ProbeOptions{RequireSynthesis: true, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || !res.Available {
		t.Errorf("probe = %+v", res)
	}

	missing := cfg
	missing.Binary = filepath.Join(t.TempDir(), "nope")
	res, _ = New(missing, nil).Probe(ctx, tts.ProbeOptions{})
	if res.Available || !strings.HasPrefix(res.Reason, "binary_missing") {
		t.Errorf("missing binary probe = %+v", res)
	}

	missing = cfg
	missing.Model = filepath.Join(t.TempDir(), "gone.onnx")
	missing.ModelDir = ""
	res, _ = New(missing, nil).Probe(ctx, tts.ProbeOptions{})
	if res.Available || !strings.HasPrefix(res.Reason, "model_missing") {
		t.Errorf("missing model probe = %+v", res)
	}
}
