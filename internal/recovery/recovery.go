// Package recovery keeps panics in Go code from unwinding into the host.
// Every call that crosses from the host into Go goes through one of these helpers.
package recovery

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// PanicError is returned by SafeCallWithError when fn panicked.
type PanicError struct {
	Context string
	Value   any
	Stack   string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Context, e.Value)
}

func logPanic(logger *zap.Logger, context string, value any, stack string) {
	if logger == nil {
		logger = zap.L()
	}
	logger.Error("Recovered from panic",
		zap.String("context", context),
		zap.Any("panic", value),
		zap.String("stack", stack))
}

// SafeCall calls fn with panic recovery
// Returns true if fn completed without panicking
func SafeCall(logger *zap.Logger, context string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, context, r, string(debug.Stack()))
			ok = false
		}
	}()
	fn()
	return true
}

// SafeCallWithResult calls fn with panic recovery and returns its result.
// If a panic occurs, returns defaultVal
func SafeCallWithResult[T any](logger *zap.Logger, context string, defaultVal T, fn func() T) (result T) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, context, r, string(debug.Stack()))
			result = defaultVal
		}
	}()
	return fn()
}

// SafeCallWithError calls fn with panic recovery.
// If a panic occurs, returns a *PanicError
func SafeCallWithError(logger *zap.Logger, context string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			logPanic(logger, context, r, stack)
			err = &PanicError{Context: context, Value: r, Stack: stack}
		}
	}()
	return fn()
}
