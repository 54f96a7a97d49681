package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/iris/config"
	"go.aimuz.me/iris/internal/app"
	"go.aimuz.me/iris/overlay"
)

var (
	runConfig  string
	runAddr    string
	runHotkeys bool
	runArchive bool
)

var runCmd = &cobra.Command{
	Use:   "run [-- tracker args...]",
	Short: "Run the pipeline headless and serve overlay events over websocket",
	Long: `Run starts the tracker, the blink trigger and the capture pipeline. Events
are served to overlay clients at ws://<addr>/ws; clients may send
{"command":"dismiss"}, {"command":"trigger"} or {"command":"clear"}.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "Config file (default: user config dir)")
	runCmd.Flags().StringVar(&runAddr, "addr", "127.0.0.1:7318", "Overlay websocket listen address")
	runCmd.Flags().BoolVar(&runHotkeys, "hotkeys", true, "Register the global trigger and dismiss keys")
	runCmd.Flags().BoolVar(&runArchive, "archive", true, "Record finished sessions")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(args) > 0 {
		cfg.Tracking.Args = append(cfg.Tracking.Args, args...)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := overlay.NewHub(app.StickyEvents...)
	svc := app.New(app.Options{
		Version:     Version,
		Config:      cfg,
		NoArchive:   !runArchive,
		Hotkeys:     runHotkeys,
		WatchConfig: true,
	})
	svc.AddSink(hub.Emit)
	hub.OnCommand(func(command string) {
		switch command {
		case "trigger":
			svc.Trigger()
		case "dismiss":
			if err := svc.Dismiss(); err != nil {
				slog.Error("dismiss session", "error", err)
			}
		case "clear":
			svc.ClearHistory()
		case "copy":
			if err := svc.CopyLastResponse(); err != nil {
				slog.Warn("copy response", "error", err)
			}
		default:
			slog.Debug("unknown overlay command", "command", command)
		}
	})

	srv := &http.Server{Addr: runAddr, Handler: hub.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		slog.Info("overlay listening", "addr", runAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if err := svc.Start(ctx); err != nil {
		srv.Close()
		svc.Shutdown()
		return err
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
		err = fmt.Errorf("serve overlay: %w", err)
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	hub.Close()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		slog.Error("shutdown overlay server", "error", serr)
	}
	svc.Shutdown()
	return err
}
