// Package log provides structured audit logging for the event distribution
// core.
//
// This package defines the Logger interface and Event types for capturing
// delivery-level events: connection lifecycle, broadcast enqueues and drops,
// dispatch outcomes, webhook failures and rate-limit rejections. It is
// separate from operational logging (slog) - the audit trace is a complete
// machine-readable record of what the core delivered, dropped and rejected.
//
// # Basic Usage
//
// Components accept a Logger; pass nil or NoopLogger to disable capture:
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	logger, _ := log.NewFileLogger("/var/log/pulsewire/audit.cbor")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded Event records. The Reader
// type provides filtered offline inspection of captured traces.
package log
