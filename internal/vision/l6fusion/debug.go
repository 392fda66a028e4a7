package l6fusion

import (
	"io"

	"github.com/banshee-data/pose.report/internal/monitoring"
)

var logs = monitoring.NewLoggers("l6fusion")

// SetLogWriters configures the ops, diag and trace streams for this
// package. A nil writer disables its stream.
func SetLogWriters(ops, diag, trace io.Writer) { logs.SetWriters(ops, diag, trace) }

// SetLegacyLogger sends all three streams to w; nil disables logging.
func SetLegacyLogger(w io.Writer) { logs.SetWriters(w, w, w) }

func opsf(format string, args ...interface{})   { logs.Opsf(format, args...) }
func diagf(format string, args ...interface{})  { logs.Diagf(format, args...) }
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
