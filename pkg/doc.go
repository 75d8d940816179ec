// Package pkg provides shared utilities for the turingscreen protocol engine.
//
// This package contains common functionality used by the codec, transport,
// transfer and session layers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for every failure kind the engine reports
//   - Wrapper errors that carry the failing chunk or command
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentSession, "brightness set", "value", 80)
//
// # Errors
//
// Failure kinds are sentinel values, matched with [errors.Is]:
//
//	if errors.Is(err, pkg.ErrTransferFailed) {
//	    var te *pkg.TransferError
//	    if errors.As(err, &te) {
//	        // te.AtChunk names the chunk that failed
//	    }
//	}
package pkg
