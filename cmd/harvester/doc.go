// Package main hosts the harvester CLI.
//
// Architecture overview:
//   - Session: internal/browser drives one Chrome tab through chromedp and exposes it as a harvest.Page.
//   - Harvest loop: internal/harvest opens the listing, dismisses overlays, then walks the table page by page.
//     Each parent row is expanded, normalized into a TenderRecord, deduplicated, checkpointed and collapsed.
//   - Persistence: internal/store keeps the result snapshot and checkpoint files and writes both atomically.
//     Snapshots can be mirrored to a local directory or a GCS bucket. Admitted records can also be
//     inserted into Postgres, and the run summary can be published to Pub/Sub.
//   - Observability: zap logs carry page and row positions; the progress Hub batches run events into log,
//     Prometheus and status sinks; the optional ops server exposes /healthz, /readyz, /metrics and /v1/status.
//
// Commands:
//   - harvester run [--headful] [--max-pages N]
//   - harvester status
//   - harvester reset
//
// Configuration comes from an optional YAML file (--config), a .env file and HARVESTER_* environment
// variables, e.g. HARVESTER_HARVEST_MAX_PAGES=2 or HARVESTER_MIRROR_BACKEND=gcs.
package main
