// Command puzzleproxy serves daily puzzles fetched from upstream sites.
//
// The proxy walks an ordered list of candidate sources for the requested
// date and returns the first JSON document it can obtain, either directly
// from a JSON endpoint or extracted from a page's embedded game data. When
// headless rendering is enabled, script-driven pages can be rendered with
// Chrome before extraction.
//
// Subcommands:
//   - serve: run the HTTP server (GET|OPTIONS /api/mini?date=YYYY-MM-DD).
//   - fetch: resolve one date and print the document to stdout.
//
// Configuration comes from an optional YAML file (--config) and PUZZLE_*
// environment variables; PORT overrides server.port for container platforms.
// Failed extractions can be snapshotted to memory, disk or GCS, resolutions
// published to Pub/Sub, and every attempt recorded in Postgres.
package main
