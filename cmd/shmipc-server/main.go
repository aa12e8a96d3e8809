// File: cmd/shmipc-server/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/shmipc/server"
)

var args struct {
	SocketPath  string
	MaxSlots    uint32
	TXCapacity  string
	RXCapacity  string
	NumWorkers  int
	NUMANode    int
	IdleTimeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:     "shmipc-server",
	Short:   "Shared-memory IPC server",
	Version: "0.1.0",
	RunE: func(cmd *cobra.Command, cmdArgs []string) error {
		return run()
	},
}

func init() {
	def := server.DefaultConfig()
	flags := rootCmd.Flags()
	flags.StringVarP(&args.SocketPath, "socket", "s", def.SocketPath, "control socket path")
	flags.Uint32Var(&args.MaxSlots, "max-slots", def.MaxSlots, "maximum concurrent connections")
	flags.StringVar(&args.TXCapacity, "tx-capacity", "2MiB", "TX ring capacity per connection, e.g. 2MiB")
	flags.StringVar(&args.RXCapacity, "rx-capacity", "2MiB", "RX ring capacity per connection, e.g. 2MiB")
	flags.IntVarP(&args.NumWorkers, "workers", "w", def.NumWorkers, "dispatch executor worker count")
	flags.IntVar(&args.NUMANode, "numa-node", def.NUMANode, "preferred NUMA node, -1 to disable pinning")
	flags.DurationVar(&args.IdleTimeout, "idle-timeout", def.IdleTimeout, "close a connection idle this long")
}

func run() error {
	var tx, rx datasize.ByteSize
	if err := tx.UnmarshalText([]byte(args.TXCapacity)); err != nil {
		return fmt.Errorf("invalid --tx-capacity: %w", err)
	}
	if err := rx.UnmarshalText([]byte(args.RXCapacity)); err != nil {
		return fmt.Errorf("invalid --rx-capacity: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	cfg := server.DefaultConfig()
	cfg.SocketPath = args.SocketPath
	cfg.MaxSlots = args.MaxSlots
	cfg.TXCapacity = tx.Bytes()
	cfg.RXCapacity = rx.Bytes()
	cfg.NumWorkers = args.NumWorkers
	cfg.NUMANode = args.NUMANode
	cfg.IdleTimeout = args.IdleTimeout

	svc, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	log.Info("shmipc-server listening",
		zap.String("socket", cfg.SocketPath),
		zap.Uint32("max_slots", cfg.MaxSlots))

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return svc.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
