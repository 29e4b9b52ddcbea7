// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultPostgresImage is the Postgres image used for repository tests.
	DefaultPostgresImage = "postgres:16-alpine"

	postgresPort     = "5432/tcp"
	postgresUser     = "lookalike"
	postgresPassword = "lookalike"
	postgresDB       = "lookalike"
)

// PostgresContainer is a running Postgres for integration tests.
type PostgresContainer struct {
	testcontainers.Container
	DSN string
}

// PostgresOption configures the container.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	startTimeout time.Duration
}

// WithPostgresImage overrides the image.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) { c.image = image }
}

// WithPostgresStartTimeout overrides the start timeout.
func WithPostgresStartTimeout(timeout time.Duration) PostgresOption {
	return func(c *postgresConfig) { c.startTimeout = timeout }
}

// NewPostgresContainer starts Postgres and returns a DSN for it.
//
// Example:
//
//	pg, err := testinfra.NewPostgresContainer(ctx)
//	testinfra.CleanupContainer(t, pg)
//	db, err := repository.Open(&config.PostgresConfig{DSN: pg.DSN})
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{
		image:        DefaultPostgresImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		// The server logs readiness twice: once for the init run, once for real.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port.Port(), postgresUser, postgresPassword, postgresDB)
	return &PostgresContainer{Container: container, DSN: dsn}, nil
}
