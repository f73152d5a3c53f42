// Package cli implements the xenium-to-qupath command-line interface.
//
// The commands are:
//   - convert: turn a cells.zarr store into GeoJSON or NDJSON
//   - serve: answer bbox and cell queries over HTTP
//   - inspect: list the arrays of a store
//   - cellid: encode and decode Xenium cell ids
//   - cache, config, completion: housekeeping
//
// convert, serve and inspect also accept http(s) URLs; the store is
// downloaded into the cache directory first. All commands support
// --verbose (-v) for debug-level logging.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger with timestamps formatted as "HH:MM:SS.ms".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Converted 194412 cells (1.234s)"
func (p *progress) done(msg string, keyvals ...any) {
	p.logger.Info(msg+" ("+time.Since(p.start).Round(time.Millisecond).String()+")", keyvals...)
}
