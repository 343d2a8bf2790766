// Package logger provides a leveled, thread-safe logging facility.
//
// Each log line carries a timestamp, the level, an optional source tag and
// the formatted message. Source tags identify the emitting component, for
// example "worker-3", "collector" or "coordinator".
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "fibpool started")
//	logger.Info("worker-1", "finished %d jobs", n)
//	logger.Error("coordinator", "run failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("worker-0", "job %d computed", seq)
//
// Components that always log under the same tag hold a Source:
//
//	log := logger.ForWorker(3)
//	log.Debug("job %d -> %d", seq, value)
//
// # Output Formats
//
// FormatText writes "[ts] [LEVEL] [source] msg" lines. FormatJSON writes one
// JSON object per line through log/slog with the tag in a "source" field.
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// ParseLevel and ParseFormat convert the textual names used in environment
// variables and flags.
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
