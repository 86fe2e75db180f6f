// Command mboserver wires together the Ingest Driver, Market, Broadcast
// Hub, Persistence Sink and Query Surface into one process, with graceful
// shutdown driven by signal.NotifyContext and a tomb.Tomb goroutine group.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"mbobook/internal/config"
	"mbobook/internal/httpapi"
	"mbobook/internal/hub"
	"mbobook/internal/ingest"
	"mbobook/internal/market"
	"mbobook/internal/sink"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Error().Err(err).Msg("bad configuration")
		return 2
	}

	level, err := zerolog.ParseLevel(cfg.LogFilter)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	m := market.New()

	s, err := sink.Open(cfg.DBPath, buildSinkConfig(cfg), log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open persistence sink")
		return 1
	}
	defer s.Close()

	h := hub.New(hub.Config{
		QueueCapacity:  cfg.SubscriberQueueCap,
		MaxSubscribers: cfg.MaxSubscribers,
		GraceDeadline:  hub.DefaultGraceDeadline,
	}, log)

	feedFile, err := os.Open(cfg.DBNFilePath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBNFilePath).Msg("failed to open feed file")
		return 1
	}
	source := ingest.NewJSONLinesSource(feedFile, feedFile)
	driver := ingest.New(source, m, ingest.DefaultConfig(), log, h, s)

	var ready atomic.Bool
	httpSrv := &http.Server{
		Addr:    cfg.BindAddress,
		Handler: httpapi.New(m, h, log, ready.Load),
	}

	t, tombCtx := tomb.WithContext(ctx)
	t.Go(func() error { return s.Run(t) })
	t.Go(func() error {
		h.Run(t)
		<-t.Dying()
		return nil
	})
	t.Go(func() error {
		ready.Store(true)
		err := driver.Run(t, tombCtx)
		if err == nil {
			log.Info().Msg("ingest complete, draining hub")
			drainCtx, cancel := context.WithTimeout(context.Background(), hub.DefaultGraceDeadline)
			defer cancel()
			h.Drain(drainCtx)
		}
		return err
	})
	t.Go(func() error {
		log.Info().Str("addr", cfg.BindAddress).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	<-tombCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}
	h.Drain(shutdownCtx)
	t.Kill(nil)

	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("fatal runtime error")
		return 1
	}
	log.Info().Msg("graceful shutdown complete")
	return 0
}

func buildSinkConfig(cfg config.Config) sink.Config {
	sc := sink.DefaultConfig()
	sc.BatchSize = cfg.BatchSize
	sc.BatchInterval = time.Duration(cfg.BatchIntervalMS) * time.Millisecond
	return sc
}
