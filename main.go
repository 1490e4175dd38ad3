package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/zerbitx/lyre/config"
	"github.com/zerbitx/lyre/dispatch"
	"github.com/zerbitx/lyre/events"
	"github.com/zerbitx/lyre/lyre"
	"github.com/zerbitx/lyre/registry"
	"github.com/zerbitx/lyre/scanner"
)

func main() {
	cfg := config.New()
	logger := newLogger(cfg)

	reg := registry.New()
	loader := scanner.NewLoader(cfg.ScanPath, cfg.FileSuffix, reg,
		scanner.WithLogger(logger),
		scanner.WithIgnore(cfg.Ignore...),
	)

	// A bad scan path is not fatal, the server runs empty until it is fixed
	if err := loader.Load(); err != nil {
		var se *scanner.ScanError
		if errors.As(err, &se) {
			logger.WithError(err).Error("scan-path must point to a valid directory, serving no endpoints")
		} else {
			logger.WithError(err).Error("failed to scan")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.LiveReload {
		watcher := scanner.NewWatcher(loader, logger)

		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("live reload disabled")
			}
		}()
	} else {
		logger.Info("Watcher disabled, to enable live reload set LYRE_LIVE_RELOAD=true")
	}

	engine := dispatch.New(events.NewLogSink(logger), logger)
	app := lyre.New(reg, engine,
		lyre.WithLogger(logger),
		lyre.WithHost(cfg.Host),
		lyre.WithPort(cfg.Port),
		lyre.WithBasePath(cfg.BasePath),
		lyre.WithConfigBasePath(cfg.ConfigBasePath),
	)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		if err := app.Shutdown(); err != nil {
			logger.WithError(err).Error()
		}
	}()

	if err := app.Start(); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func newLogger(cfg *config.Env) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
