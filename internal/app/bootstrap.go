// Package app is the broker's composition root: it loads configuration,
// wires every component named in the specification, and runs the admin +
// proxy HTTP server until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/metrics"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/proxy"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/ratelimit"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/tokenmanager"
	"github.com/rhavekost/dicomweb-oauth-broker/pkg/logging"
)

// Application bootstraps and runs the broker. It follows a two-phase
// pattern: NewApplication loads configuration and wires every component,
// Run serves HTTP until its context is cancelled.
type Application struct {
	cfg       *Config
	globalCfg config.GlobalConfig
	managers  map[string]*tokenmanager.Manager
	metrics   *metrics.Registry
	server    *http.Server
	watcher   *fsnotify.Watcher
}

// NewApplication performs the complete bootstrap sequence: configures
// logging, loads and validates configuration, and constructs one Token
// Manager per configured server plus the rate limiter, metrics registry,
// and HTTP handler that sit in front of them.
func NewApplication(cfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}

	globalCfg, err := config.LoadFile(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := logging.ParseLevel(globalCfg.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logOutput)

	var reg *metrics.Registry
	if globalCfg.EnableMetrics {
		reg = metrics.New()
	}

	limiter := ratelimit.New(globalCfg.RateLimitRequests, globalCfg.RateLimitWindow())

	managers := make(map[string]*tokenmanager.Manager, len(globalCfg.Servers))
	for name, serverCfg := range globalCfg.Servers {
		mgr, err := tokenmanager.New(serverCfg, reg)
		if err != nil {
			return nil, fmt.Errorf("constructing token manager for server %q: %w", name, err)
		}
		managers[name] = mgr
	}

	handler := proxy.New(cfg.PluginVersion, globalCfg, managers, limiter, reg)

	mux := handler.Mux()
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	}

	addr := cfg.ListenAddr
	if addr == "" {
		addr = ":8443"
	}

	app := &Application{
		cfg:       cfg,
		globalCfg: globalCfg,
		managers:  managers,
		metrics:   reg,
		server:    &http.Server{Addr: addr, Handler: mux},
	}

	if cfg.ConfigPath != "" {
		if watcher, err := fsnotify.NewWatcher(); err == nil {
			if watchErr := watcher.Add(cfg.ConfigPath); watchErr == nil {
				app.watcher = watcher
			} else {
				watcher.Close()
			}
		}
	}

	logging.Info("Bootstrap", "loaded configuration with %d server(s)", len(globalCfg.Servers))
	return app, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully. Configuration is never reloaded: a detected
// on-disk change is logged as a config_change security event and nothing
// more, since configuration is immutable for the process lifetime
// (spec §6.1/§9).
func (a *Application) Run(ctx context.Context) error {
	if a.watcher != nil {
		go a.watchConfigChanges(ctx)
		defer a.watcher.Close()
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("Bootstrap", "listening on %s", a.server.Addr)
		if _, _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			logging.Debug("Bootstrap", "systemd readiness notification skipped: %v", err)
		}
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Info("Bootstrap", "shutting down")
		return a.server.Shutdown(shutdownCtx)
	case err := <-serveErr:
		return err
	}
}

func (a *Application) watchConfigChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logging.Audit(logging.SecurityEvent{
					Kind:   logging.EventConfigChange,
					Fields: map[string]string{"path": event.Name},
				})
				logging.Warn("Bootstrap", "configuration file changed on disk; a restart is required to pick up changes")
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Bootstrap", err, "configuration file watcher error")
		}
	}
}

// Managers exposes the constructed Token Managers, keyed by server name.
func (a *Application) Managers() map[string]*tokenmanager.Manager { return a.managers }

// GlobalConfig exposes the loaded configuration for status reporting.
func (a *Application) GlobalConfig() config.GlobalConfig { return a.globalCfg }
