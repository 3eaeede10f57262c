// Command gazesim is a gaze telemetry server for testing without a tracker.
// Clients announce themselves with the liveness datagram and then receive
// a moving gaze point.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"
)

func main() {
	cfg := DefaultConfig()
	var address = flag.String("listen", cfg.Address, "Address to serve on")
	var rate = flag.Int("rate", cfg.Rate, "Samples per second")
	var pathName = flag.String("path", "circle", "Gaze path: circle, lissajous, saccade or center")
	var period = flag.Duration("period", 4*time.Second, "Duration of one pass over the path")
	var radius = flag.Float64("radius", 0.3, "Path radius in normalized screen units")
	var debug = flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path, err := ParsePath(*pathName, *period, *radius)
	if err != nil {
		log.Fatalf("Invalid path: %v", err)
	}

	cfg.Address = *address
	cfg.Rate = *rate
	srv, err := NewServer(cfg, path, logger)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("serving gaze telemetry", "addr", srv.Addr(), "path", *pathName, "rate", cfg.Rate)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("stopped", "sent", srv.Sent())
}
