package monitoring

import (
	"io"
	"log"
	"sync"
)

// Loggers is a package's set of three log streams:
//
//   - ops: actionable warnings such as lost tracking or failed sinks
//   - diag: day-to-day diagnostics and configuration context
//   - trace: per-frame telemetry
//
// A nil writer disables its stream. Loggers is safe for concurrent use.
type Loggers struct {
	mu               sync.RWMutex
	prefix           string
	ops, diag, trace *log.Logger
}

// NewLoggers returns disabled streams whose lines will be prefixed with
// "[name] ".
func NewLoggers(name string) *Loggers {
	return &Loggers{prefix: "[" + name + "] "}
}

// SetWriters replaces all three streams.
func (l *Loggers) SetWriters(ops, diag, trace io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = l.newLogger(ops)
	l.diag = l.newLogger(diag)
	l.trace = l.newLogger(trace)
}

func (l *Loggers) newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, l.prefix, log.LstdFlags|log.Lmicroseconds)
}

func (l *Loggers) printf(pick func(*Loggers) *log.Logger, format string, args []interface{}) {
	l.mu.RLock()
	lg := pick(l)
	l.mu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

func (l *Loggers) Opsf(format string, args ...interface{}) {
	l.printf(func(l *Loggers) *log.Logger { return l.ops }, format, args)
}

func (l *Loggers) Diagf(format string, args ...interface{}) {
	l.printf(func(l *Loggers) *log.Logger { return l.diag }, format, args)
}

func (l *Loggers) Tracef(format string, args ...interface{}) {
	l.printf(func(l *Loggers) *log.Logger { return l.trace }, format, args)
}

// Enabled reports which streams currently have a writer.
func (l *Loggers) Enabled() (ops, diag, trace bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ops != nil, l.diag != nil, l.trace != nil
}
