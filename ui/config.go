package ui

// Config contains TUI-specific configuration. The tagged fields can be set
// from the environment.
type Config struct {
	Title string

	// StartIndex and StartChar resume a saved position.
	StartIndex int
	StartChar  int

	Rate           float64
	DarkBackground bool

	EnableMouse  bool `env:"TTSYNC_MOUSE"`
	ExitOnFinish bool `env:"TTSYNC_EXIT_ON_FINISH" envDefault:"true"`
}
