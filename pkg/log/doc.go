// Package log provides the structured device event log for BCU simulations.
//
// The package defines the Logger interface and the Event type used to
// capture what a bus coupling unit does: telegrams it receives and sends,
// lifecycle transitions, flash commits, memory service accesses and errors.
// It is separate from operational logging (slog). The event log is a
// complete machine-readable trace for debugging and replay analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For analysis: write to a binary file
//	cfg.Logger, _ = log.NewFileLogger("/tmp/bcu.blog")
//
//	// Both
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Each event carries exactly one payload:
//   - TelegramEvent: decoded telegrams in and out, including drops
//   - LifecycleEvent: device state machine transitions and notifications
//   - CommitEvent: shadow pages flushed to flash
//   - MemoryEvent: memory and property service accesses
//   - ErrorEventData: errors at any layer
//
// # File Format
//
// Log files are a stream of CBOR-encoded events, by convention with the
// .blog extension. The bcu-log tool views, filters and summarizes them.
package log
