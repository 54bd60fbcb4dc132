package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"

	"github.com/maxpoletaev/replicated/internal/telemetry"
)

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Println("cli error:", err)
		}

		os.Exit(2)
	}

	wg := sync.WaitGroup{}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Initialize all components.
	metrics := telemetry.New()
	logger, closeLogger := setupLogger()
	prober, closeProber := setupProber(logger)
	rt, closeRouter := setupRouter(prober, metrics, logger)
	closePublisher := setupPublisher(&wg, rt, logger)
	closeAPIServer := setupAPIServer(&wg, rt, metrics, logger)

	// The checker must be stopped before its probe connections are closed.
	shutdownOrder := []shutdownFunc{
		closeAPIServer,
		closeRouter,
		closePublisher,
		closeProber,
		closeLogger,
	}

	// Block until we receive a signal to shut down.
	<-interrupt
	level.Info(logger).Log("msg", "received interrupt signal, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown all components.
	for _, f := range shutdownOrder {
		if err := f(ctx); err != nil {
			level.Error(logger).Log("msg", "failed to shutdown component", "err", err)
		}
	}

	// Wait for all components to finish background tasks.
	wg.Wait()
}
