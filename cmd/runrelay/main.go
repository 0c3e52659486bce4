package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runrelay/runrelay/internal/api"
	"github.com/runrelay/runrelay/internal/pubsub"
	"github.com/runrelay/runrelay/internal/runs"
	"github.com/runrelay/runrelay/internal/storage"
	"github.com/runrelay/runrelay/internal/streams"
	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "load config"))
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		stdlog.Panic(errors.WrapFail(err, "init logger"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	defer cancel()

	history, err := streams.NewHistory(ctx, log, cfg.Database, cfg.Sources.Chunks)
	if err != nil {
		log.Panic(errors.WrapFail(err, "init chunk history"))
	}

	registry, err := streams.NewRegistry(log, cfg.Streams, history)
	if err != nil {
		log.Panic(errors.WrapFail(err, "init stream registry"))
	}

	if cfg.PubSub.Enabled {
		registry.SetForwarder(pubsub.NewKafkaProducer(cfg.PubSub, log))

		consumer, err := pubsub.NewKafkaConsumer(ctx, cfg.PubSub, log)
		if err != nil {
			log.Panic(errors.WrapFail(err, "init kafka consumer"))
		}
		consumer.HandleEvents(ctx, registry.ApplyRemote)
	}

	if cfg.Archive.Path != "" {
		archive := storage.NewFileStorage(cfg.Archive.Path, cfg.Archive.Interval, registry.Archive(), log)
		go func() {
			err := archive.Run(ctx)
			if err != nil {
				log.Error(errors.WrapFail(err, "run archive storage"))
			}
		}()
	}

	runsAPI, err := runs.New(ctx, log, cfg.Runs, cfg.Database, cfg.Sources.Runs, registry)
	if err != nil {
		log.Panic(errors.WrapFail(err, "init runs api"))
	}

	server := api.NewServer(cfg.API, log, runsAPI, registry)

	stopped := make(chan struct{})
	context.AfterFunc(ctx, func() {
		stdlog.Println("Graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Error(errors.WrapFail(err, "shutdown server"))
		}

		err = history.Close(shutdownCtx)
		if err != nil {
			log.Error(errors.WrapFail(err, "close chunk history"))
		}

		stopped <- struct{}{}
	})

	stdlog.Println("Relay is serving")
	err = server.Serve(ctx)
	if err != nil {
		log.Error(err)
	}

	<-stopped
	stdlog.Println("Shutdown complete")
}
