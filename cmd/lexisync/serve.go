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

	"github.com/spf13/cobra"

	"github.com/lexiflow/lexisync/internal/api"
	"github.com/lexiflow/lexisync/internal/auth"
	"github.com/lexiflow/lexisync/internal/catalog"
	"github.com/lexiflow/lexisync/internal/config"
	"github.com/lexiflow/lexisync/internal/db"
	"github.com/lexiflow/lexisync/internal/logging"
	"github.com/lexiflow/lexisync/internal/monitor"
	lexisync "github.com/lexiflow/lexisync/internal/sync"
	"github.com/lexiflow/lexisync/internal/version"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the sync server",
	Long: `Run the HTTP sync server.

Routes:
  GET  /health                      liveness, no auth
  GET  /sync/timestamp              current checkpoint
  GET  /sync/tables                 registered tables
  GET  /sync/{table}?lastSyncTime=  changes since a checkpoint
  POST /sync/{table}                apply a batch of envelopes
  GET  /monitor/ws                  live activity stream (Admin)

Changes to sync.table_roles in the config file take effect without a
restart. SIGHUP reopens the log file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(cmd.Context()); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (server.addr)")
	mustBind("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set LEXISYNC_AUTH_JWT_SECRET)")
	}

	out := logging.Open(logging.Config{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer out.Close()
	logger := out.Logger("serve")

	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	registry := lexisync.NewRegistry()
	err = catalog.Register(registry, database, lexisync.TableOptions{
		Policy:  cfg.Policy(),
		Workers: cfg.Sync.Workers,
		Logger:  out.Logger("sync"),
	})
	if err != nil {
		return err
	}
	if err := catalog.ApplyRoles(registry, cfg.Sync.TableRoles); err != nil {
		return fmt.Errorf("sync.table_roles: %w", err)
	}

	// Checkpoints must never go behind what is already stored, even if the
	// wall clock stepped back across a restart.
	authority := lexisync.NewAuthority()
	latest, err := database.LatestChange(catalog.SQLTables()...)
	if err != nil {
		return err
	}
	authority.Advance(latest)
	database.SetClock(authority)

	if v.ConfigFileUsed() != "" {
		config.Watch(v, logger, func(c *config.Config) {
			if err := catalog.ApplyRoles(registry, c.Sync.TableRoles); err != nil {
				logger.Printf("WARNING: Keeping current table roles: %v", err)
				return
			}
			logger.Printf("Reloaded table roles")
		})
	}

	var (
		observer lexisync.Observer
		hub      *monitor.Hub
	)
	if cfg.Monitor.Enabled {
		hub = monitor.NewHub(&monitor.Config{
			Version: version.Version,
			Tables:  registry.Names,
			Logger:  out.Logger("monitor"),
		})
		defer hub.Close()
		observer = monitor.NewHandler(hub, out.Logger("monitor"))
	}

	engine := lexisync.New(lexisync.Config{
		Registry:  registry,
		Authority: authority,
		Observer:  observer,
		Logger:    out.Logger("sync"),
	})

	resolver, err := auth.NewJWTResolver([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		Engine:       engine,
		Resolver:     resolver,
		Version:      version.Version,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       out.Logger("api"),
	}
	if hub != nil {
		apiCfg.Monitor = hub
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(apiCfg).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     out.Logger("http"),
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := out.Rotate(); err != nil {
				logger.Printf("WARNING: Failed to rotate log: %v", err)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Listening on %s (db %s, policy %s, %d tables)",
			cfg.Server.Addr, database.Path(), cfg.Policy(), len(registry.Names()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Printf("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	logger.Printf("Server stopped")
	return nil
}
