// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package notify delivers lookalike completion notifications.
//
// Redis publishes a JSON envelope on the per-user channel
// user:<user_id>:notifications for the UI. Fanout combines it with the
// NATS publisher from eventprocessor so the export pipeline and the UI are
// told about the same completion.
package notify
