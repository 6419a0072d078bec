// Package api hosts the HTTP server, middleware and handlers. Routes:
//   - GET|OPTIONS /api/mini?date=YYYY-MM-DD and /v1/puzzle?date=YYYY-MM-DD
//     resolve one puzzle through the candidate chain.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//
// Every response, including errors and unknown routes, carries permissive
// CORS headers.
package api
