// Package app wires the storage engine together for the chatdb binary:
// config, transport, governor, store, repair scheduler and the admin HTTP
// server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"chatdb/internal/repair"
	"chatdb/pkg/banner"
	"chatdb/pkg/config"
	"chatdb/pkg/governor"
	"chatdb/pkg/logger"
	"chatdb/pkg/remote"
	"chatdb/pkg/store"
)

// App encapsulates the engine components and lifecycle.
type App struct {
	eff     config.Effective
	version string

	st  *store.Store
	srv *http.Server
}

// New builds the transport, governor and store from the effective config.
// It does not start the repair scheduler or the admin server; Run does.
func New(eff config.Effective, version string) (*App, error) {
	_ = godotenv.Load(".env")

	cfg := eff.Config
	var transport remote.Transport
	switch cfg.Remote.Backend {
	case "", "memory":
		transport = remote.NewMemory()
	case "rest":
		if cfg.Remote.Token == "" || cfg.Remote.BaseURL == "" {
			return nil, fmt.Errorf("rest backend requires remote.base_url and remote.token")
		}
		transport = remote.NewRESTClient(remote.RESTConfig{
			BaseURL:   cfg.Remote.BaseURL,
			Token:     cfg.Remote.Token,
			Workspace: cfg.Remote.Workspace,
		})
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}

	gov := governor.New(governor.Config{
		RPS:        cfg.Governor.RPS,
		Burst:      cfg.Governor.Burst,
		MaxRetries: cfg.Governor.MaxRetries,
		MaxWait:    time.Duration(cfg.Governor.MaxWaitSec) * time.Second,
	})

	st, err := store.Open(governor.NewClient(gov, transport), store.Config{
		PageSize:      cfg.Remote.PageSize,
		MaxMessageLen: cfg.Remote.MaxMessageLen,
		CachePath:     eff.CachePath,
	})
	if err != nil {
		return nil, err
	}

	return &App{eff: eff, version: version, st: st}, nil
}

// Store exposes the façade for embedding callers.
func (a *App) Store() *store.Store {
	return a.st
}

// Run starts the repair scheduler and the admin HTTP server, blocking
// until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	stopRepair, err := repair.Start(ctx, a.st, a.eff.Config.Repair.Enabled, a.eff.Config.Repair.Cron)
	if err != nil {
		return err
	}
	defer stopRepair()

	banner.Print(a.eff, a.version)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: a.routes()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin_server_listening", "addr", a.eff.Addr)
		errCh <- a.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		logger.Info("admin_server_stopped")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}
	return a.st.Close()
}
