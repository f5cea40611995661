// Package api serves the crawled catalog read-only over HTTP. Routes:
//   - GET /health for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/{brands,categories,models,parts} for whole collections.
//   - GET /api/search/{brands,categories,models,parts} with case-insensitive
//     equality filters taken from the query string.
//   - GET /api/changeset for the latest run's changeset.
//
// Collections that were never written are served as empty arrays.
package api
