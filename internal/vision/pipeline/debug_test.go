package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Log streams are package state; this test is not parallel.
func TestLogStreams(t *testing.T) {
	var ops, all bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	opsf("ops %d", 1)
	diagf("hidden")
	// the timestamp sits between prefix and message
	assert.True(t, strings.HasPrefix(ops.String(), "[pipeline] "), ops.String())
	assert.Contains(t, ops.String(), " ops 1\n")
	assert.NotContains(t, ops.String(), "hidden")

	SetLegacyLogger(&all)
	t.Cleanup(func() { SetLegacyLogger(nil) })
	opsf("a")
	diagf("b")
	tracef("c")
	assert.Equal(t, 3, strings.Count(all.String(), "[pipeline] "))
}
