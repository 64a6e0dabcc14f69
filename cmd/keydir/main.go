package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"privmsg/internal/directory"
	"privmsg/internal/metrics"
	"privmsg/internal/util/privacylog"
	"privmsg/internal/util/ratelimiter"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	rps := flag.Float64("rps", 20, "requests per second allowed per client host")
	burst := flag.Int("burst", 40, "request burst allowed per client host")
	withMetrics := flag.Bool("metrics", true, "serve Prometheus metrics on /metrics")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	logger := privacylog.New(os.Stderr, *logFormat, slog.LevelInfo)

	opts := directory.ServerOptions{
		Logger:  logger,
		Limiter: ratelimiter.New(*rps, *burst, 10*time.Minute),
	}
	if *withMetrics {
		opts.Metrics = metrics.New()
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           directory.NewServer(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("keydir listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("keydir stopped", "err", err)
		os.Exit(1)
	}
}
