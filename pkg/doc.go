// Package pkg provides shared utilities for the usbd runtime bridge.
//
// This package contains common functionality used across the bridge
// core, the HAL boundary, and the HAL implementations, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for the bridge error taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentUSBD, "transfer submitted", "ep", 0x81)
//
// # Errors
//
// Bridge errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrBusy) {
//	    // Endpoint already has an outstanding transfer
//	}
package pkg
