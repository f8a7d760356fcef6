// Package logging provides structured logging for the lighting core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, with service and version attached
// to every record.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	hueLog := logger.With("component", "bridge-adapter")
//	hueLog.Warn("event stream closed", "error", err)
//
// Never log application keys, fabric credentials or JWT secrets.
package logging
