package recovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSafeCall(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	assert.True(t, SafeCall(logger, "ok", func() {}))
	assert.False(t, SafeCall(logger, "load", func() { panic("boom") }))

	entries := logs.FilterMessage("Recovered from panic").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "load", entries[0].ContextMap()["context"])
	}
}

func TestSafeCallWithResult(t *testing.T) {
	logger := zap.NewNop()

	assert.Equal(t, 7, SafeCallWithResult(logger, "ok", -1, func() int { return 7 }))
	assert.Equal(t, -1, SafeCallWithResult(logger, "panics", -1, func() int { panic("boom") }))
}

func TestSafeCallWithError(t *testing.T) {
	logger := zap.NewNop()
	sentinel := errors.New("plain")

	assert.ErrorIs(t, SafeCallWithError(logger, "err", func() error { return sentinel }), sentinel)

	err := SafeCallWithError(logger, "search", func() error { panic("boom") })
	var perr *PanicError
	if assert.ErrorAs(t, err, &perr) {
		assert.Equal(t, "search", perr.Context)
		assert.Equal(t, "boom", perr.Value)
		assert.NotEmpty(t, perr.Stack)
		assert.Equal(t, "panic in search: boom", perr.Error())
	}
}
