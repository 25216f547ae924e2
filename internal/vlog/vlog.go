// Package vlog implements the severity-filtered text log stream named in
// spec.md §6. It generalizes the teacher's package-level Verbose-bool /
// Vprintf pattern into the graded severity levels the original decoder
// uses (LogThisAt(level, ...)): progress (2), input-model dump (6), matrix
// dump (10), traceback trace (9), mutation events (3). Logging is purely
// diagnostic; nothing here affects functional correctness.
package vlog

import (
	"fmt"
	"io"
	"log"
)

// Logger is a severity-gated wrapper around the standard log.Logger.
// Threshold is the maximum level that will actually be written; a call
// site's level must be <= Threshold to print, mirroring LogThisAt's
// "at most this verbose" semantics.
type Logger struct {
	*log.Logger
	Threshold int
}

// New returns a Logger writing to w with flags cleared, matching the
// teacher's log.SetFlags(0) convention (cmd/cablastp-compress/main.go).
func New(w io.Writer, threshold int) *Logger {
	return &Logger{Logger: log.New(w, "", 0), Threshold: threshold}
}

// At reports whether level is enabled at the current threshold; callers
// guard expensive-to-format messages with it before building the string.
func (l *Logger) At(level int) bool {
	return l != nil && level <= l.Threshold
}

// Logf writes a message at level, formatted printf-style, if enabled.
func (l *Logger) Logf(level int, format string, args ...any) {
	if !l.At(level) {
		return
	}
	l.Logger.Printf(format, args...)
}

// Warnf always writes a warning line regardless of threshold, matching the
// original's unconditional Warn(...) for non-fatal conditions such as
// decodeerr.ErrNoDecoding.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.Logger.Printf("WARN: "+format, args...)
}

// Progress levels, matching spec.md §6.
const (
	LevelProgress    = 2
	LevelInputModel  = 6
	LevelTraceback   = 9
	LevelMatrixDump  = 10
	LevelMutation    = 3
)

// Progress reports fill progress at LevelProgress, adapting the teacher's
// ProgressBar tick counter (progress_bar.go) into a single formatted line
// per observed position rather than a redrawn terminal bar, since the
// decoder's log stream is a plain text stream, not a tty widget.
type Progress struct {
	logger *Logger
	label  string
	total  int
}

// NewProgress creates a progress reporter for a fill of the given total
// number of positions.
func NewProgress(l *Logger, label string, total int) *Progress {
	return &Progress{logger: l, label: label, total: total}
}

// Tick logs progress through position pos (0-based) if LevelProgress is
// enabled.
func (p *Progress) Tick(pos int) {
	if !p.logger.At(LevelProgress) {
		return
	}
	pct := 100.0
	if p.total > 0 {
		pct = 100 * float64(pos) / float64(p.total)
	}
	p.logger.Logf(LevelProgress, "%s: row %d/%d (%.1f%%)", p.label, pos, p.total, pct)
}

// Sprintf is a tiny convenience so call sites building diagnostic strings
// for At-gated logging don't need to import fmt themselves.
func Sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
