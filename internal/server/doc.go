// Package server provides the local HTTP panel for CellGen.
//
// The panel is the browser-facing counterpart of the setup wizard and help
// menu. It listens on localhost by default.
//
// Security features:
//   - Optional token authentication (X-Auth-Token, from server_token)
//   - Localhost binding by default (127.0.0.1:8787)
//   - Secrets are masked on read unless ?reveal=true is given
//
// API endpoints:
//   - POST /v1/generate    - {provider, prompt, context} -> {text} or {error, kind}
//   - GET  /v1/credentials - Stored keys, masked
//   - POST /v1/credentials - Partial save; omitted providers keep their key
//   - GET  /v1/help        - Help menu text
//   - GET  /v1/metrics     - Usage summary and counters (after SetMetrics)
//   - GET  /metrics        - Dispatch series in the Prometheus text format
//   - GET  /health         - Health check (no auth required)
//
// Every response carries an X-Request-ID header.
//
// Example usage:
//
//	srv := server.New(cfg, dispatcher, store, logger)
//	err := srv.Start(ctx) // Blocks until ctx is cancelled
package server
