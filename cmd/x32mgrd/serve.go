package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravwell/x32mgr/internal/config"
	"github.com/gravwell/x32mgr/internal/httpapi"
	"github.com/gravwell/x32mgr/internal/wsapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rt, err := buildRuntime(cfg, rootLogger)
	if err != nil {
		return err
	}
	defer rt.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", wsapi.New(rootLogger, rt.bus, rt.sess))
	mux.Handle("/", httpapi.New(rootLogger, rt.bus, rt.sess, rt.corr, rt.snd, rt.store, cfg.ListenPort, cfg.ConsolePort, cfg.DiscoverTimeout))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if cfg.ConsoleIP != "" || cfg.MockMode {
		if err := rt.sess.Open(cfg.ListenPort + 1); err != nil {
			rootLogger.Warnf("failed to open initial console session: %v", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	rootLogger.Infof("listening on %s", srv.Addr)

	sch := make(chan os.Signal, 1)
	signal.Notify(sch, os.Interrupt)

	select {
	case <-sch:
		rootLogger.Infof("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
