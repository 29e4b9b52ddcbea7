// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package main is the entry point of the lookalike filler.
//
// The filler consumes lookalike job requests from NATS JetStream, scores the
// identity graph against the seed audience of each job and writes the final
// audience back to Postgres.
//
// # Application Architecture
//
// Components are initialized in this order:
//
//  1. Configuration: defaults, config.yaml, then environment (Koanf v2)
//  2. DuckDB: identity graph and per-job score table
//  3. Postgres: jobs, seed audiences and the lookalike output table (GORM)
//  4. Artifacts: model store, optional MinIO uploads, optional Badger partition cache
//  5. Notifications: completion events on NATS and optional Redis user channels
//  6. Pipeline and job consumer (Watermill router over JetStream)
//  7. Status server: /healthz, /metrics and job progress
//
// Everything long-running is a suture service under one supervisor tree.
//
// # Flags
//
//	-run <job-id>      run one job in the foreground and exit
//	-enqueue <job-id>  publish a job request and exit
//	-purge <job-id>    drop the job's scores and cached partitions and exit
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the tree. Jobs still running at shutdown stay
// unacknowledged and are redelivered to another filler.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/api"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/cache"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/config"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/database"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/eventprocessor"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/storage"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/notify"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/objectstore"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/repository"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/supervisor"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/supervisor/services"
)

const (
	maintenanceInterval = 10 * time.Minute
	progressCacheTTL    = 5 * time.Second
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	runJob := flag.String("run", "", "run a single job in the foreground and exit")
	enqueueJob := flag.String("enqueue", "", "publish a request for a job and exit")
	purgeJob := flag.String("purge", "", "drop scores and cached partitions of a job and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("redis_enabled", cfg.Redis.Enabled).
		Bool("object_store_enabled", cfg.ObjectStore.Enabled).
		Int("workers", cfg.Lookalike.Workers).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *enqueueJob != "" {
		if err := enqueue(ctx, cfg, *enqueueJob); err != nil {
			logging.Fatal().Err(err).Str("job_id", *enqueueJob).Msg("Failed to enqueue job")
		}
		logging.Info().Str("job_id", *enqueueJob).Msg("Job request published")
		return
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize DuckDB")
	}
	db.SizePoolForWorkers(cfg.Lookalike.Workers)
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing DuckDB")
		}
	}()

	gormDB, err := repository.Open(&cfg.Postgres)
	if err != nil {
		logging.Fatal().Err(err).Str("dsn", config.RedactDSN(cfg.Postgres.DSN)).Msg("Failed to connect to Postgres")
	}
	repo := repository.New(gormDB)
	defer func() {
		if err := repo.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing Postgres")
		}
	}()
	if err := repo.Migrate(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to migrate Postgres schema")
	}
	logging.Info().Msg("Postgres ready")

	if *purgeJob != "" {
		purge(ctx, db, cfg, *purgeJob)
		return
	}

	deps := lookalike.Deps{
		Jobs:          repo,
		Seeds:         repo,
		Distributions: repo,
		Graph:         db,
		Scores:        db,
		Users:         repo,
	}

	var uploader *objectstore.Client
	if cfg.ObjectStore.Enabled {
		uploader, err = objectstore.New(&cfg.ObjectStore)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		deps.Uploader = uploader
		logging.Info().Str("bucket", uploader.Bucket()).Msg("Artifact uploads enabled")
	}

	var storeOpts []storage.Option
	if uploader != nil {
		storeOpts = append(storeOpts, storage.WithUploader(uploader))
	}
	models, err := storage.NewStore(cfg.Lookalike.ModelDir, storeOpts...)
	if err != nil {
		logging.Fatal().Err(err).Str("dir", cfg.Lookalike.ModelDir).Msg("Failed to open model store")
	}
	deps.Models = models

	var partitions *cache.PartitionStore
	if cfg.Lookalike.CacheDir != "" {
		partitions, err = cache.OpenPartitionStore(cfg.Lookalike.CacheDir, cfg.Lookalike.CacheTTL)
		if err != nil {
			logging.Fatal().Err(err).Str("dir", cfg.Lookalike.CacheDir).Msg("Failed to open partition cache")
		}
		defer func() {
			if err := partitions.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing partition cache")
			}
		}()
		deps.Cache = partitions
		logging.Info().Str("dir", cfg.Lookalike.CacheDir).Msg("Partition cache enabled")
	}

	var redisNotifier *notify.Redis
	if cfg.Redis.Enabled {
		redisNotifier, err = notify.NewRedis(ctx, &cfg.Redis, logger)
		if err != nil {
			// Notifications are best effort; the filler still produces audiences.
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, user notifications disabled")
		} else {
			defer func() {
				if err := redisNotifier.Close(); err != nil {
					logging.Error().Err(err).Msg("Error closing Redis notifier")
				}
			}()
		}
	}

	var components *eventprocessor.Components
	if cfg.NATS.Enabled && *runJob == "" {
		components, err = eventprocessor.Connect(ctx, eventprocessor.NewConfig(&cfg.NATS))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize NATS")
		}
	}

	fanout := notify.NewFanout(
		notify.Named{Name: "redis", Notifier: notifierOrNil(redisNotifier)},
		notify.Named{Name: "nats", Notifier: publisherOrNil(components)},
	)
	if fanout.Len() > 0 {
		deps.Notifier = fanout
	}

	pipeline, err := lookalike.NewPipeline(cfg.Lookalike.Pipeline(), deps, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create lookalike pipeline")
	}

	if *runJob != "" {
		runOnce(ctx, pipeline, *runJob)
		return
	}

	health := eventprocessor.NewHealthChecker(0)
	if components != nil {
		health = components.Health()
	}
	health.RegisterComponent("duckdb", pingCheck("duckdb", db.Ping))
	health.RegisterComponent("postgres", pingCheck("postgres", repo.Ping))
	if redisNotifier != nil {
		health.RegisterComponent("redis", redisNotifier)
	}
	health.RegisterComponent("pipeline", eventprocessor.HealthCheckFunc(func(context.Context) eventprocessor.ComponentHealth {
		return eventprocessor.ComponentHealth{
			Name:      "pipeline",
			Healthy:   true,
			LastCheck: time.Now(),
			Details: map[string]interface{}{
				"running_jobs":  pipeline.Running(),
				"finished_jobs": pipeline.Finished(),
			},
		}
	}))
	if uploader != nil {
		health.RegisterComponent("object_store", pingCheck("object_store", uploader.Ping))
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if components != nil {
		if err := components.RegisterJobHandler(pipeline, logger); err != nil {
			logging.Fatal().Err(err).Msg("Failed to register job handler")
		}
		tree.AddMessagingService(services.NewNATSComponentsService(components, 30*time.Second))
		logging.Info().Str("topic", cfg.NATS.RequestTopic).Msg("Job consumer added to supervisor tree")
	} else {
		logging.Warn().Msg("NATS disabled; no jobs will be consumed (use -run to process a job)")
	}

	handler := api.NewHandler(repo, health, progressCacheTTL)
	if partitions != nil {
		tree.AddDataService(services.NewPeriodicService("partition-cache-gc", maintenanceInterval, func(context.Context) error {
			return partitions.RunGC()
		}))
	}

	if cfg.Server.Enabled {
		tree.AddDataService(services.NewPeriodicService("progress-cache-sweep", time.Minute, func(context.Context) error {
			if n := handler.SweepProgressCache(); n > 0 {
				logging.Debug().Int("removed", n).Msg("Swept progress cache")
			}
			return nil
		}))
		server := api.NewHTTPServer(&cfg.Server, api.NewRouter(handler, &cfg.Server))
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("Status server added to supervisor tree")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().
		Int64("jobs_finished", pipeline.Finished()).
		Msg("Lookalike filler stopped gracefully")
}

// runOnce executes a job synchronously, for backfills and debugging.
func runOnce(ctx context.Context, pipeline *lookalike.Pipeline, jobID string) {
	ctx = logging.ContextWithJobID(ctx, jobID)
	start := time.Now()
	if err := pipeline.Run(ctx, jobID); err != nil {
		logging.Fatal().Err(err).Str("job_id", jobID).Msg("Job failed")
	}
	logging.Info().Str("job_id", jobID).Dur("duration", time.Since(start)).Msg("Job finished")
}

// purge removes what a job left in DuckDB and the partition cache. The
// Postgres job row and output mapping are owned by the web API.
func purge(ctx context.Context, db *database.DB, cfg *config.Config, jobID string) {
	if err := db.DeleteScores(ctx, jobID); err != nil {
		logging.Fatal().Err(err).Str("job_id", jobID).Msg("Failed to delete scores")
	}
	if cfg.Lookalike.CacheDir != "" {
		partitions, err := cache.OpenPartitionStore(cfg.Lookalike.CacheDir, cfg.Lookalike.CacheTTL)
		if err != nil {
			logging.Fatal().Err(err).Str("dir", cfg.Lookalike.CacheDir).Msg("Failed to open partition cache")
		}
		defer partitions.Close() //nolint:errcheck
		if err := partitions.DropJob(jobID); err != nil {
			logging.Error().Err(err).Str("job_id", jobID).Msg("Failed to drop cached partitions")
		}
	}
	logging.Info().Str("job_id", jobID).Msg("Job artifacts purged")
}

// enqueue publishes a job request without starting the consumer.
func enqueue(ctx context.Context, cfg *config.Config, jobID string) error {
	if !cfg.NATS.Enabled {
		return errors.New("NATS is disabled")
	}
	components, err := eventprocessor.Connect(ctx, eventprocessor.NewConfig(&cfg.NATS))
	if err != nil {
		return err
	}
	defer components.Shutdown(context.Background())

	return components.Publisher().PublishJobRequested(ctx, cfg.NATS.RequestTopic, eventprocessor.NewJobRequested(jobID))
}

func pingCheck(name string, ping func(context.Context) error) eventprocessor.HealthCheckFunc {
	return func(ctx context.Context) eventprocessor.ComponentHealth {
		h := eventprocessor.ComponentHealth{Name: name, Healthy: true, LastCheck: time.Now()}
		if err := ping(ctx); err != nil {
			h.Healthy = false
			h.Error = err.Error()
		}
		return h
	}
}

// The fan-out skips nil notifiers; typed nil pointers must not reach it.
func notifierOrNil(r *notify.Redis) lookalike.Notifier {
	if r == nil {
		return nil
	}
	return r
}

func publisherOrNil(c *eventprocessor.Components) lookalike.Notifier {
	if c == nil || c.Publisher() == nil {
		return nil
	}
	return c.Publisher()
}
