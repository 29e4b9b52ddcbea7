// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package storage persists trained lookalike models.
//
// Each model is gob encoded, gzip compressed and written together with its
// metadata and a SHA-256 checksum of the uncompressed payload. Files are named
// lookalike_<jobID>_v<version>.gob.gz; every save of the same job writes the
// next version, and loads return the latest one.
//
// A restarted job finds its model here and skips training. When an uploader
// is configured, every saved file is also copied to object storage under
// models/<file name>.
//
// All operations are safe for concurrent use.
package storage
