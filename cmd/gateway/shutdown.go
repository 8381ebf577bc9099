package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

// runGateway runs the gateway and handles shutdown.
func runGateway(app *application, flags cliFlags, logger observability.Logger) {
	ctx := context.Background()

	if err := app.gateway.Start(ctx); err != nil {
		fatalWithSync(logger, "failed to start gateway", observability.Error(err))
		return // unreachable in production; allows test to continue
	}

	var watcher *config.Watcher
	if flags.watchConfig {
		watcher = startConfigWatcher(ctx, app, flags.configPath, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdown(app, watcher, logger)
}

// shutdown stops the watcher, drains the listener and releases the
// dispatcher's pooled resources.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	// Closes the balancers and the session store after the listener drains.
	if err := app.dispatcher.Close(); err != nil {
		logger.Error("failed to close dispatcher", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("gateway stopped")
}
