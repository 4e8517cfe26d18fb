// Package main provides the entry point for the ttsync CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/ttsync/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	fromClip   bool
	restart    bool
	plain      bool

	rootCmd = &cobra.Command{
		Use:   "ttsync [SOURCE|-]",
		Short: "Read documents aloud, in sync",
		Long: paragraph(
			fmt.Sprintf("\nRead markdown and text aloud while %s the spoken word.", keyword("highlighting")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := pickSource(ctx, args)
	if err != nil {
		return err
	}
	text, err := src.read()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	tui := !plain && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec
	return play(ctx, cmd.OutOrStdout(), rt, src, text, tui)
}

// pickSource chooses where the document comes from. A piped stdin wins over
// arguments, as does --clipboard.
func pickSource(ctx context.Context, args []string) (*source, error) {
	if fromClip {
		return sourceFromClipboard()
	}
	if yes, err := stdinIsPipe(); err != nil {
		return nil, err
	} else if yes {
		return sourceFromArg(ctx, "-")
	}
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	return sourceFromArg(ctx, arg)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	loadDotEnv()
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", configFile, "config file")
	pf.StringP("engine", "e", "", "speech engine (mock, exec, piper, openai)")
	pf.String("fallback", "", "engine to switch to after repeated failures")
	pf.String("voice", "", "voice id")
	pf.Float64P("rate", "r", 1, "speaking rate (0.5 to 2.0)")
	pf.Float64("volume", 1, "volume (0.0 to 1.0)")
	pf.Bool("silent", false, "run the engine without an audio device")
	pf.Bool("no-disk-cache", false, "do not read or write the on-disk audio cache")
	pf.String("progress", "", "path of the listening progress database")
	pf.Bool("debug", false, "write debug output to the log file")

	rootCmd.Flags().BoolVarP(&fromClip, "clipboard", "c", false, "read the document from the clipboard")
	rootCmd.Flags().BoolVar(&restart, "restart", false, "start from the beginning instead of the saved position")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "print sentences as they are spoken instead of running the player")
	rootCmd.Flags().BoolP("mouse", "m", false, "enable mouse wheel")
	rootCmd.Flags().Int("lookahead", 2, "sentences to synthesize ahead of playback")

	// Config bindings
	_ = viper.BindPFlag("tts.engine", pf.Lookup("engine"))
	_ = viper.BindPFlag("tts.voice", pf.Lookup("voice"))
	_ = viper.BindPFlag("tts.rate", pf.Lookup("rate"))
	_ = viper.BindPFlag("tts.volume", pf.Lookup("volume"))
	_ = viper.BindPFlag("fallback", pf.Lookup("fallback"))
	_ = viper.BindPFlag("silent", pf.Lookup("silent"))
	_ = viper.BindPFlag("progress", pf.Lookup("progress"))
	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("lookahead", rootCmd.Flags().Lookup("lookahead"))
	_ = viper.BindPFlag("no-disk-cache", pf.Lookup("no-disk-cache"))

	tts.SetDefaults()
	viper.SetDefault("mouse", false)
	viper.SetDefault("lookahead", 2)

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, probeCmd, progressCmd, cacheCmd, serveCmd)
}

// loadDotEnv reads a .env file from the working directory, if any. Variables
// already set in the environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not load .env file", "err", err)
	}
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := appScope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "ttsync")}, dirs...)
	}

	if c := os.Getenv("TTSYNC_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("ttsync")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("ttsync")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok { //nolint:errorlint
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "ttsync.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
