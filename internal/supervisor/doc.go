// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

/*
Package supervisor runs watchpost's long-lived services under a suture v4 tree.

The tree has two layers so a crash in event ingest never takes the API down:

	RootSupervisor ("watchpost")
	├── IngestSupervisor ("ingest-layer")
	│   └── pipeline.Ingestor (NATS JetStream consumer, build tag: nats)
	└── APISupervisor ("api-layer")
	    ├── websocket.Hub (live notification stream)
	    └── services.HTTPServerService

Supervisor events (restarts, backoff, stop timeouts) are logged through
sutureslog into the zerolog-backed slog handler from the logging package.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	if cfg.Ingest.NATSEnabled {
	    tree.AddIngestService(ingestor)
	}
	return tree.Serve(ctx)
*/
package supervisor
