package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/vyrodovalexey/routegw/internal/config"
	"github.com/vyrodovalexey/routegw/internal/observability"
)

var errReloadRejected = errors.New("configuration rejected by gateway")

// startConfigWatcher starts the configuration watcher.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) error {
		logger.Info("configuration changed, reloading")
		return reloadConfig(app, newCfg, logger)
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(err error) {
			// Rejections by the gateway are already counted.
			if !errors.Is(err, errReloadRejected) {
				app.metrics.RecordConfigReload(err)
			}
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return watcher
	}

	return watcher
}

// reloadConfig swaps newCfg into the gateway. Session store and service
// discovery settings are bound at startup and only produce a warning when
// they change.
func reloadConfig(app *application, newCfg *config.GatewayConfig, logger observability.Logger) error {
	oldCfg := app.gateway.Config()

	if err := app.gateway.Reload(newCfg); err != nil {
		logger.Error("failed to reload gateway config",
			observability.Error(err),
		)
		return fmt.Errorf("%w: %w", errReloadRejected, err)
	}

	if configSectionChanged(oldCfg.Spec.Global.SessionStore, newCfg.Spec.Global.SessionStore) {
		logger.Warn("session store configuration has changed but is NOT hot-reloaded; " +
			"restart the gateway to apply it")
	}
	if configSectionChanged(oldCfg.Spec.Global.ServiceDiscovery, newCfg.Spec.Global.ServiceDiscovery) {
		logger.Warn("service discovery configuration has changed but is NOT hot-reloaded; " +
			"restart the gateway to apply it")
	}
	if configSectionChanged(oldCfg.Spec.Observability, newCfg.Spec.Observability) {
		logger.Warn("observability configuration has changed but is NOT hot-reloaded; " +
			"restart the gateway to apply it")
	}

	logger.Info("configuration reloaded",
		observability.Int("routes", len(newCfg.Spec.Routes)),
	)
	return nil
}

// configSectionHash computes a SHA-256 hash of a configuration section.
func configSectionHash(v any) ([sha256.Size]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}

// configSectionChanged compares two configuration sections by hash,
// falling back to reflect.DeepEqual when either cannot be marshaled.
func configSectionChanged(oldSection, newSection any) bool {
	oldHash, oldOK := configSectionHash(oldSection)
	newHash, newOK := configSectionHash(newSection)
	if oldOK && newOK {
		return oldHash != newHash
	}
	return !reflect.DeepEqual(oldSection, newSection)
}
