package monitoring

import (
	"io"
	"log"
)

// Logf is the process-level logger used by commands. It defaults to
// log.Printf but may be replaced by SetLogger. Tests can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams picks the writers for the ops, diag and trace log streams of the
// vision packages. The ops stream always goes to w; diag and trace are nil
// (disabled) unless requested.
func Streams(w io.Writer, diag, trace bool) (opsW, diagW, traceW io.Writer) {
	opsW = w
	if diag {
		diagW = w
	}
	if trace {
		traceW = w
	}
	return opsW, diagW, traceW
}
