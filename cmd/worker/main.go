package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"thirdcoast.systems/reelfeed/internal/application"
	"thirdcoast.systems/reelfeed/internal/config"
	"thirdcoast.systems/reelfeed/internal/db"
	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/completion"
	"thirdcoast.systems/reelfeed/internal/pipeline/orchestrator"
	"thirdcoast.systems/reelfeed/internal/queue/pgqueue"
	"thirdcoast.systems/reelfeed/internal/transcoder"
	"thirdcoast.systems/reelfeed/internal/transcoder/faketranscoder"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting transcode worker service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	videos := db.NewVideos(dbc)
	jobQueue := pgqueue.New(pool, conf.DatabaseDSN, pgqueue.Config{
		Visibility:  time.Duration(conf.QueueVisibilitySeconds) * time.Second,
		MaxReceives: conf.QueueMaxReceives,
	})
	keys := videokey.NewScheme(conf.UploadBucket, conf.UploadPrefix, conf.OutputPrefix)
	objects := objectstore.NewHTTP(conf.UploadBucket, conf.CDNBaseURL)

	var engine transcoder.Engine
	if conf.TranscoderURL != "" {
		engine = transcoder.NewHTTPEngine(conf.TranscoderURL)
	} else {
		slog.Warn("TRANSCODER_URL not set; using in-process fake engine")
		engine = faketranscoder.New()
	}

	orch := orchestrator.New(videos, jobQueue, engine, objects, keys)
	handler := completion.NewHandler(videos, jobQueue, objects, keys, nil, 3)
	poller := completion.NewPoller(handler, engine, 10*time.Second)

	transcodeTimeout := time.Duration(conf.TranscodeTimeoutMinutes) * time.Minute

	// Recover work orphaned by a previous instance before consuming new jobs.
	if err := handler.Sweep(ctx, transcodeTimeout); err != nil {
		slog.Error("startup sweep failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		jobQueue.Listen(ctx)
		return nil
	})

	slog.Info("Transcode consumers started", "workers", conf.TranscodeWorkers)
	for i := 0; i < conf.TranscodeWorkers; i++ {
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	g.Go(func() error {
		return poller.Run(ctx)
	})
	g.Go(func() error {
		return handler.RunSweep(ctx, time.Minute, transcodeTimeout)
	})
	g.Go(func() error {
		return orch.RunDeadLetterDrain(ctx, time.Minute)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
	slog.Info("Transcode worker service stopping")
}
