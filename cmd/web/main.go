package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"thirdcoast.systems/reelfeed/cmd/web/internal/web"
	"thirdcoast.systems/reelfeed/internal/application"
	"thirdcoast.systems/reelfeed/internal/config"
	"thirdcoast.systems/reelfeed/internal/db"
	"thirdcoast.systems/reelfeed/internal/feed"
	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/completion"
	"thirdcoast.systems/reelfeed/internal/pipeline/ingest"
	"thirdcoast.systems/reelfeed/internal/queue/pgqueue"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting web service")

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

	if err := dbc.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	videos := db.NewVideos(dbc)
	jobQueue := pgqueue.New(pool, conf.DatabaseDSN, pgqueue.Config{
		Visibility:  time.Duration(conf.QueueVisibilitySeconds) * time.Second,
		MaxReceives: conf.QueueMaxReceives,
	})
	keys := videokey.NewScheme(conf.UploadBucket, conf.UploadPrefix, conf.OutputPrefix)
	objects := objectstore.NewHTTP(conf.UploadBucket, conf.CDNBaseURL)

	e, err := web.NewWebserver(
		videos,
		feed.NewService(videos, objects, keys),
		ingest.NewHandler(videos, jobQueue, keys),
		completion.NewHandler(videos, jobQueue, objects, keys, nil, 3),
	)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
