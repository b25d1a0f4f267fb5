package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	modbus "github.com/landas/micro-modbus"
)

var (
	serveServerID   string
	serveStatsEvery time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Modbus TCP server",
	Long: `Start serving the Modbus data tables over TCP.

The server runs until interrupted. With --store mmap the data tables
live in a memory-mapped file and every write is flushed, so register
contents survive a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveServerID, "server-id", "micro-modbus server", "Identification returned for Report Server ID requests")
	serveCmd.Flags().DurationVar(&serveStatsEvery, "stats-interval", 0, "Log server metrics at this interval (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	store.SetServerID([]byte(serveServerID))

	server := modbus.NewServer(store.Callbacks(),
		modbus.WithLogger(logger),
		modbus.WithMaxConnections(viper.GetInt("max_conns")),
		modbus.WithIdleTimeout(viper.GetDuration("idle_timeout")),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if serveStatsEvery > 0 {
		go logStats(ctx, server)
	}

	addr := listenAddress()
	logger.Info("starting server",
		slog.String("addr", addr),
		slog.String("store", viper.GetString("store")))
	return server.ListenAndServeContext(ctx, addr)
}

func openStore() (*modbus.MemoryStore, error) {
	switch viper.GetString("store") {
	case "memory", "":
		return modbus.NewMemoryStore(), nil
	case "mmap":
		path := viper.GetString("store_path")
		if path == "" {
			return nil, fmt.Errorf("--store-path is required with --store mmap")
		}
		return modbus.NewMmapStore(path)
	default:
		return nil, fmt.Errorf("unknown store type %q", viper.GetString("store"))
	}
}

func logStats(ctx context.Context, server *modbus.Server) {
	ticker := time.NewTicker(serveStatsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := server.Metrics()
			logger.Info("server stats",
				slog.Int64("requests_total", m.RequestsTotal.Value()),
				slog.Int64("requests_success", m.RequestsSuccess.Value()),
				slog.Int64("requests_exceptions", m.RequestsExceptions.Value()),
				slog.Int64("requests_errors", m.RequestsErrors.Value()),
				slog.Int64("active_conns", m.ActiveConns.Value()),
				slog.Int64("total_conns", m.TotalConns.Value()),
				slog.Int64("rejected_conns", m.RejectedConns.Value()),
				slog.Int64("timeout_conns", m.TimeoutConns.Value()))
		}
	}
}
