// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package supervisor runs the long-lived parts of a filler under a suture
// supervisor tree with restart backoff.
//
//	lookalike-filler
//	├── data-layer       partition cache GC, progress cache sweeps
//	├── messaging-layer  NATS job consumer
//	└── api-layer        status server
//
// Supervisor events are logged through sutureslog on the zerolog-backed
// slog logger. Service adapters live in the services subpackage.
//
// Example:
//
//	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLoggerFor("supervisor"), supervisor.DefaultTreeConfig())
//	tree.AddMessagingService(services.NewNATSComponentsService(comps))
//	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
//	err = tree.Serve(ctx)
package supervisor
