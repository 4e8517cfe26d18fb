package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/ttsync/internal/metrics"
	"github.com/dgnsrekt/ttsync/internal/server"
	"github.com/dgnsrekt/ttsync/tts"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP control API",
	Long:    paragraph(fmt.Sprintf("\nRun the engine behind an HTTP API with a %s event stream and Prometheus metrics. Voice, rate, pitch and volume follow edits to the config file.", keyword("websocket"))),
	Example: paragraph("ttsync serve\nttsync serve --addr :7317 --engine openai"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		collector := metrics.NewCollector(nil)
		rt, err := newRuntime(cfg, tts.WithObserver(collector))
		if err != nil {
			return err
		}
		defer rt.Close() //nolint:errcheck
		detach := collector.Attach(rt.engine)
		defer detach()

		srv := server.New(rt.engine,
			server.WithLogger(log.WithPrefix("server")),
			server.WithMetrics(collector),
		)
		defer srv.Close() //nolint:errcheck

		go warmUp(ctx, rt.engine)
		watchSettings(rt.engine)

		addr := viper.GetString("addr")
		log.Info("Serving", "addr", addr, "engine", cfg.Engine)
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", keyword("http://"+addr))
		return srv.Run(ctx, addr) //nolint:wrapcheck
	},
}

func init() {
	serveCmd.Flags().String("addr", server.DefaultAddr, "address to listen on")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	viper.SetDefault("addr", server.DefaultAddr)
}

// warmUp probes the engine and loads its voices so the first request does
// not wait for them.
func warmUp(ctx context.Context, engine *tts.Engine) {
	if h := engine.Probe(ctx); !h.Available {
		log.Warn("Engine unavailable", "reason", h.Reason)
		return
	}
	log.Info("Engine ready", "voices", len(engine.LoadVoices(ctx)))
}

// watchSettings applies voice, rate, pitch and volume whenever the config
// file changes.
func watchSettings(engine *tts.Engine) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		st := settingsFromConfig()
		if err := server.ApplySettings(engine, st); err != nil {
			log.Warn("Config change ignored", "file", e.Name, "err", err)
			return
		}
		log.Info("Settings reloaded", "file", e.Name)
	})
	viper.WatchConfig()
}

// settingsFromConfig reads the live-tunable settings present in the config.
func settingsFromConfig() server.Settings {
	var st server.Settings
	if viper.InConfig("tts") {
		if v := viper.GetString("tts.voice"); viper.IsSet("tts.voice") {
			st.Voice = &v
		}
		if v := viper.GetFloat64("tts.rate"); viper.IsSet("tts.rate") {
			st.Rate = &v
		}
		if v := viper.GetFloat64("tts.pitch"); viper.IsSet("tts.pitch") {
			st.Pitch = &v
		}
		if v := viper.GetFloat64("tts.volume"); viper.IsSet("tts.volume") {
			st.Volume = &v
		}
	}
	return st
}
