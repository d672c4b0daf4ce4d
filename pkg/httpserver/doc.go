// Package httpserver wraps http.Server with env-driven configuration,
// graceful shutdown on SIGINT/SIGTERM, and structured logging.
package httpserver
