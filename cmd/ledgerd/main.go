// Command ledgerd runs the ledger engine: the maturity sweeper, the referral
// reconciler, event delivery and the operations listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/israeldewcom/Real-wealth/internal/app/runtime"
	"github.com/israeldewcom/Real-wealth/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", "", "path to a YAML config file (overrides LEDGER_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := runtime.NewApplication(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := application.Run(ctx)

	// ctx is already done here; shutdown gets a fresh deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
