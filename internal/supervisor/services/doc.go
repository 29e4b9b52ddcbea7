// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package services adapts filler components to suture.Service.
//
//	HTTPServerService      status server (ListenAndServe/Shutdown)
//	NATSComponentsService  job consumer (Start/Shutdown)
//	PeriodicService        interval maintenance tasks
//
// Each Serve blocks until its context is canceled, cleans up, and returns
// ctx.Err(). Errors returned earlier make suture restart the service.
package services
