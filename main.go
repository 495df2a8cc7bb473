// coursegen/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursegen/config"
	"coursegen/progress"
	"coursegen/sim"
	"coursegen/watch"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Create a context tied to SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A non-empty SIM_LISTEN turns the binary into a local
	// course-generation backend; otherwise it watches one generation.
	if cfg.SimListen != "" {
		runSimulator(ctx, cfg)
		return
	}
	runWatch(ctx, cfg)
}

// runWatch submits the configured generation request and follows its
// progress channel until the task reaches a terminal state.
func runWatch(ctx context.Context, cfg *config.Config) {
	snap, err := watch.New(cfg).Run(ctx)
	if err != nil {
		log.Fatalf("Watch failed: %v", err)
	}

	switch snap.Status {
	case progress.StatusCompleted:
		log.Printf("Generation completed: course %d (progress %d%%)", snap.ResultID, snap.Progress)
	case progress.StatusFailed, progress.StatusError:
		log.Printf("Generation ended with status %s: %s", snap.Status, snap.LastError)
		os.Exit(1)
	default:
		log.Printf("Generation left in status %s", snap.Status)
		os.Exit(1)
	}
}

// runSimulator serves the local generation backend until interrupted.
func runSimulator(ctx context.Context, cfg *config.Config) {
	srv := &http.Server{
		Addr:    cfg.SimListen,
		Handler: sim.NewServer(cfg).Router(),
	}

	go func() {
		log.Printf("Simulator starting on %s", cfg.SimListen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Simulator exiting")
}
