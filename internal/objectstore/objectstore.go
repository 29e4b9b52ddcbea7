// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package objectstore uploads pipeline artifacts (trained models and audit
// CSV files) to an S3-compatible bucket through MinIO's client.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/config"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// Client writes objects into one bucket. The bucket is created on first use.
type Client struct {
	client *minio.Client
	bucket string
	region string

	mu          sync.Mutex
	bucketReady bool
}

// New creates a client. No request is made until the first upload.
func New(cfg *config.ObjectStoreConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return &Client{client: mc, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Bucket returns the target bucket name.
func (c *Client) Bucket() string { return c.bucket }

// EnsureBucket creates the bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bucketReady {
		return nil
	}

	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
			// Another filler may have created it meanwhile.
			if resp := minio.ToErrorResponse(err); resp.Code != "BucketAlreadyOwnedByYou" && resp.Code != "BucketAlreadyExists" {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		logging.Info().Str("bucket", c.bucket).Msg("Created object store bucket")
	}
	c.bucketReady = true
	return nil
}

// UploadFile copies a local file to objectName.
func (c *Client) UploadFile(ctx context.Context, objectName, path, contentType string) error {
	objectName = strings.TrimLeft(objectName, "/")
	if objectName == "" {
		return errors.New("object name is required")
	}
	if err := c.EnsureBucket(ctx); err != nil {
		return err
	}

	info, err := c.client.FPutObject(ctx, c.bucket, objectName, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectName, err)
	}
	logging.Debug().
		Str("bucket", c.bucket).
		Str("object", objectName).
		Int64("size", info.Size).
		Msg("Uploaded artifact")
	return nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	return err
}
