package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rossfreedman/rally-sub012/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start schedulers (expiry sweep, notification dispatch, outbox relay)
//    and run them until SIGINT/SIGTERM.
func main() {
	log.Println("rally lineup escrow worker starting")
	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("rally lineup escrow worker stopped with error: %v", err)
	}
	log.Println("rally lineup escrow worker stopped")
}
