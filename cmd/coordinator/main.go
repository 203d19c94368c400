// Command coordinator runs the tablet placement coordinator: it tracks
// cluster membership, owns the tablet metadata for every table, and serves
// the placement API over HTTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/tessera/internal/cluster"
	"github.com/dreamware/tessera/internal/config"
	"github.com/dreamware/tessera/internal/coordinator"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Read(*configPath)
		if err != nil {
			slog.Error("cannot read configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.PopulateDefaults()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(log)

	srv, err := newServer(cfg, log)
	if err != nil {
		log.Error("cannot initialize server", "error", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Node.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.monitor.Start(ctx)

	if cfg.Node.Join != "" {
		joinCtx, joinCancel := context.WithTimeout(ctx, 10*time.Second)
		host, err := cluster.RegisterNode(joinCtx, cfg.Node.Join, cluster.RegisterRequest{
			HostID: cfg.Node.HostID,
			Addr:   cfg.Node.Addr,
		})
		joinCancel()
		if err != nil {
			log.Error("cannot join cluster", "coordinator", cfg.Node.Join, "error", err)
			os.Exit(1)
		}
		log.Info("joined cluster", "coordinator", cfg.Node.Join, "host", host)
	}

	go func() {
		log.Info("coordinator listening", "addr", cfg.Node.Listen, "host", srv.localHost)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.monitor.Stop()
	log.Info("coordinator stopped")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newServer wires the directory, coordinator, and health monitor from the
// configuration. Statically configured peers are registered up front; the
// rest join through POST /register.
func newServer(cfg *config.Config, log *slog.Logger) (*server, error) {
	localHost, err := cluster.ParseHostID(cfg.Node.HostID)
	if err != nil {
		return nil, err
	}

	dir := cluster.NewDirectory()
	for _, peer := range cfg.Peers {
		host := cluster.NewHostID()
		if peer.HostID != "" {
			if host, err = cluster.ParseHostID(peer.HostID); err != nil {
				return nil, err
			}
		}
		n := cluster.NodeInfo{Host: host, Addr: cluster.Endpoint(peer.Addr), Up: true}
		if err := dir.AddNode(n); err != nil {
			return nil, err
		}
	}

	features := cluster.Features{EnableTablets: cfg.Features.Tablets}
	coord := coordinator.New(dir, features, localHost, cluster.ShardID(cfg.Node.Shards), log)
	coord.RefreshTopology()

	monitor := coordinator.NewHealthMonitor(dir, time.Duration(cfg.Health.IntervalMs)*time.Millisecond, log)
	monitor.SetOnUnhealthy(func(host cluster.HostID) {
		coord.RefreshTopology()
	})

	return &server{
		localHost: localHost,
		dir:       dir,
		coord:     coord,
		monitor:   monitor,
		log:       log,
	}, nil
}
