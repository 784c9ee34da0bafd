// Package logging provides structured logging for tagrade.
//
// This package wraps Go's log/slog to write JSON-formatted logs, one file per
// holder under the class's shared logs directory, so that an administrator can
// reconstruct who locked and released what after a grader's process died.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(layout.LogsDir, "alice", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("lock acquired", "lab", "Lab3", "student", "42")
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	labLogger := logger.WithHolder("alice").WithLab("Lab3")
//	labLogger.WithStudent("42").Warn("fetch retry", "attempt", 2)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"fetch retry","holder":"alice","lab":"Lab3","student":"42","attempt":2}
//
// # History
//
// [History] reads every holder's log file from a logs directory and
// [FilterEntries] narrows the result by level, holder, lab, student or time.
// The "tagrade locks history" command is built on these.
//
// # Testing
//
// Use [NopLogger] to discard all output.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package logging
