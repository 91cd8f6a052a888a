// Package api hosts the HTTP server, middleware, and handlers for the gallery
// and scrape triggers. Notable routes:
//   - GET / and /label/{label} render the gallery as HTML.
//   - GET /reddit runs one scrape pass and renders its summary.
//   - POST /v1/scrape, GET /v1/images and GET /v1/runs are the JSON equivalents.
//   - GET /images/* serves bytes for stores that hold them locally.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
