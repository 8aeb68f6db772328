// Command livesync-demo connects to a sync server, watches the event stream,
// and resolves detected conflicts from the terminal.
//
// Usage:
//
//	livesync-demo [-config livesync.yaml] [-url ws://host:port/ws] [-auto keep_remote]
//
// With -auto set, every detected conflict is resolved immediately with the
// given strategy; otherwise conflicts accumulate as pending and are printed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	livesync "github.com/knovault/go-live-sync"
	"github.com/knovault/go-live-sync/logging"
	"github.com/knovault/go-live-sync/storage/bolt"
	"github.com/knovault/go-live-sync/storage/memory"
	"github.com/knovault/go-live-sync/storage/sqlite"
	"github.com/knovault/go-live-sync/transport/ws"
	"github.com/knovault/go-live-sync/wire"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	url := flag.String("url", "", "sync endpoint (overrides config)")
	auto := flag.String("auto", "", "auto-resolve strategy: keep_local, keep_remote, keep_both")
	flag.Parse()

	logging.Init(logging.GetConfigFromEnv())

	if err := run(*configPath, *url, *auto); err != nil {
		logging.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath, urlOverride, auto string) error {
	cfg := &livesync.Config{}
	if configPath != "" {
		loaded, err := livesync.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	url := cfg.URL
	if urlOverride != "" {
		url = urlOverride
	}

	var strategy livesync.ResolutionStrategy
	if auto != "" {
		strategy = livesync.ResolutionStrategy(auto)
		if !strategy.Valid() {
			return fmt.Errorf("unknown auto-resolve strategy %q", auto)
		}
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := livesync.NewManager(ws.NewDialer(ws.Options{}), store, &livesync.Options{
		URL:       livesync.ResolveURL(url),
		Reconnect: policy,
	})
	defer manager.Close()

	workflow := livesync.NewWorkflow(store, manager, nil)
	ctx := context.Background()

	manager.OnStatusChange(func(s livesync.Status) {
		logging.Info("status", slog.String("state", string(s)))
	})
	manager.OnEvent(func(ev wire.Event) {
		switch e := ev.(type) {
		case wire.FileClassified:
			logging.Info("file classified",
				slog.String("path", e.Path),
				slog.String("category", e.Category),
				slog.Float64("confidence", e.Confidence))
		case wire.SyncStatusChanged:
			logging.Info("sync status",
				slog.String("state", e.State),
				slog.Int("pending_uploads", e.PendingUploads))
		case wire.GraphUpdated:
			logging.Info("graph updated",
				slog.Int("nodes", e.Nodes),
				slog.Int("edges", e.Edges))
		case wire.ConflictDetected:
			logging.Warn("conflict detected",
				slog.String("id", e.ID),
				slog.String("path", e.Path))
			if strategy != "" {
				if _, err := workflow.Resolve(ctx, e.ID, strategy, "auto-resolved"); err != nil {
					logging.Error("auto-resolve failed",
						slog.String("id", e.ID),
						slog.String("error", err.Error()))
				}
			}
		}
	})

	if err := manager.Connect(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	pending, err := workflow.Pending(ctx)
	if err != nil {
		return err
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	logging.Info("shutting down",
		slog.Int("pending", counts.Pending),
		slog.Int("resolved", counts.Resolved))
	for _, c := range pending {
		fmt.Printf("pending conflict %s: %s (%s)\n", c.ID, c.Path, c.Kind)
	}

	return manager.Disconnect()
}

func openStore(cfg livesync.StoreConfig) (livesync.ConflictStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewStore(), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "livesync-conflicts.db"
		}
		return sqlite.New(sqlite.DefaultConfig(path))
	case "bolt":
		path := cfg.Path
		if path == "" {
			path = "livesync-conflicts.bolt"
		}
		return bolt.Open(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
