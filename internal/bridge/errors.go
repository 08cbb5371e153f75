package bridge

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/module"
	"github.com/corrreia/modcoreclr/internal/recovery"
)

// ============================================================
// Error Handling
// ============================================================

var (
	lastError   string
	lastErrorMu sync.Mutex
)

// setLastError stores an error message for later retrieval by the shim
func setLastError(format string, args ...any) {
	lastErrorMu.Lock()
	lastError = fmt.Sprintf(format, args...)
	lastErrorMu.Unlock()
}

func clearLastError() {
	lastErrorMu.Lock()
	lastError = ""
	lastErrorMu.Unlock()
}

func getLastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	return lastError
}

// statusFor classifies a load error.
func statusFor(err error) Status {
	var be *clr.BootstrapError
	var pe *recovery.PanicError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &pe):
		return StatusPanic
	case errors.Is(err, config.ErrInvalidConfig):
		return StatusConfig
	case errors.As(err, &be):
		return StatusBootstrap
	case errors.Is(err, host.ErrRegistration):
		return StatusRegister
	default:
		return StatusInvalid
	}
}

// ============================================================
// Panic Recovery
// ============================================================

// safeCall runs fn with panic recovery. A panic is stored as the last
// error and reported as StatusPanic.
func safeCall(logger *zap.Logger, context string, fn func() Status) (status Status) {
	err := recovery.SafeCallWithError(logger, context, func() error {
		status = fn()
		return nil
	})
	var pe *recovery.PanicError
	if errors.As(err, &pe) {
		setLastError("%v\n%s", pe, pe.Stack)
		return StatusPanic
	}
	return status
}

// failLoad records err and returns its status.
func failLoad(logger *zap.Logger, msg string, err error) Status {
	setLastError("%v", err)
	logger.Error(msg, zap.Error(err))
	if errors.Is(err, module.ErrShutdown) {
		return StatusInvalid
	}
	return statusFor(err)
}
