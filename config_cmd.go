package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# engine used after repeated failures of the primary one
# fallback: "mock"
# enable mouse wheel in the player
mouse: false
# sentences synthesized ahead of playback
lookahead: 2

tts:
  # speech engine: mock, exec, piper or openai
  engine: "mock"
  # voice id, see "ttsync voices"
  voice: ""
  # speaking rate (0.5 to 2.0)
  rate: 1.0
  pitch: 1.0
  # volume (0.0 to 1.0)
  volume: 1.0

  synthesis:
    timeout: "15s"
    # retry delays for background preloads
    preload_delays: ["0s", "500ms", "1s"]
    preload_rps: 4
    preload_burst: 2

  playback:
    # how long to wait for a sink to start after resume
    resume_timeout: "5s"
    sample_rate: 24000
    buffer_size: "100ms"

  cache:
    # synthesized utterances kept in memory
    capacity: 50
    disk_enabled: true
    # disk_path: "~/.cache/ttsync/audio"
    disk_capacity_mb: 500
    # zstd level, 0 disables compression
    compression_level: 3

  health:
    probe_timeout: "5s"
    require_synthesis: true
    failure_threshold: 2

  # subprocess engine: one JSON request on stdin, one JSON response on stdout
  exec:
    # command: "my-tts --json"
    timeout: "30s"

  # local piper binary, voices are the .onnx models in model_dir
  piper:
    binary: "piper"
    # model: "~/.local/share/piper/en_US-lessac-medium.onnx"
    # model_dir: "~/.local/share/piper"
    sample_rate: 22050
    timeout: "30s"

  openai:
    # api_key is read from OPENAI_API_KEY when unset
    model: "tts-1"
    # base_url: "https://api.openai.com/v1"
    timeout: "30s"
    rps: 2

  mock:
    latency: "150ms"
    words_per_minute: 170
    sample_rate: 16000
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the ttsync config file",
	Long:    paragraph(fmt.Sprintf("\n%s the ttsync config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("ttsync config\nttsync config --config path/to/config.yml\nttsync config show"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("ttsync", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective engine configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showConfig(cmd.OutOrStdout())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// showConfig writes the resolved configuration as YAML with secrets masked.
func showConfig(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.OpenAI.APIKey != "" {
		cfg.OpenAI.APIKey = "********"
	}
	out := map[string]any{"tts": cfg}
	if fb := viper.GetString("fallback"); fb != "" {
		out["fallback"] = fb
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}
	return enc.Close() //nolint:wrapcheck
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile) //nolint:gosec
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
