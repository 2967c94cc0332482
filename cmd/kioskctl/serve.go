package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"moneychanger/pkg/config"
)

func serveCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk control core: peripheral links, dispense engine, and HTTP/WS surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "config overlay to merge on top of default.yaml")
	return cmd
}

func runServe(env string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	if level, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.File != "" {
		f, ferr := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			return fmt.Errorf("open log file: %w", ferr)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a.recover(startCtx)
	cancelStart()

	srv := &http.Server{Addr: cfg.API.ListenAddr, Handler: a.router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.API.ListenAddr).Info("kiosk control core listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown did not complete cleanly")
	}
	a.shutdown(shutdownCtx)
	return nil
}
