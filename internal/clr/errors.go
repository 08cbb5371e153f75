package clr

import (
	"errors"
	"fmt"
)

var (
	// ErrRuntimeNotFound is returned when no hosting library can be discovered.
	ErrRuntimeNotFound = errors.New("clr: hostfxr not found")
	// ErrPathTooLong is returned when the discovered hostfxr path does not fit the platform path buffer.
	ErrPathTooLong = errors.New("clr: hostfxr path exceeds the platform maximum path length")
	// ErrHostingAPIIncompatible is returned when the hosting library lacks a required export.
	ErrHostingAPIIncompatible = errors.New("clr: hostfxr exports are incompatible")
	// ErrRuntimeInitializationFailed is returned when hostfxr rejects the runtime configuration.
	ErrRuntimeInitializationFailed = errors.New("clr: runtime initialization failed")
	// ErrDelegateResolutionFailed is returned when the load-assembly delegate is unavailable.
	ErrDelegateResolutionFailed = errors.New("clr: runtime delegate resolution failed")
	// ErrEntryPointNotFound is returned when the loader entry point cannot be resolved.
	ErrEntryPointNotFound = errors.New("clr: loader entry point not found")
)

// Stage names one step of the bootstrap sequence.
type Stage string

const (
	StageLocate     Stage = "locate"
	StageOpen       Stage = "open"
	StageExports    Stage = "exports"
	StageInitialize Stage = "initialize"
	StageDelegate   Stage = "delegate"
	StageClose      Stage = "close"
	StageEntryPoint Stage = "entrypoint"
	StageInvoke     Stage = "invoke"
)

// BootstrapError reports the stage at which bootstrap aborted.
type BootstrapError struct {
	Stage  Stage
	Path   string
	Status StatusCode
	Err    error
}

func (e *BootstrapError) Error() string {
	msg := fmt.Sprintf("clr bootstrap failed at %s", e.Stage)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Status != 0 {
		msg += " status " + e.Status.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// StatusCode is a hostfxr/nethost result code.
type StatusCode uint32

// Result codes returned by the hosting components.
const (
	StatusSuccess                           StatusCode = 0x00000000
	StatusSuccessHostAlreadyInitialized     StatusCode = 0x00000001
	StatusSuccessDifferentRuntimeProperties StatusCode = 0x00000002
	StatusInvalidArgFailure                 StatusCode = 0x80008081
	StatusCoreHostLibLoadFailure            StatusCode = 0x80008082
	StatusCoreHostLibMissingFailure         StatusCode = 0x80008083
	StatusCoreHostEntryPointFailure         StatusCode = 0x80008084
	StatusCoreClrResolveFailure             StatusCode = 0x80008088
	StatusCoreClrBindFailure                StatusCode = 0x80008089
	StatusCoreClrInitFailure                StatusCode = 0x8000808a
	StatusInvalidConfigFile                 StatusCode = 0x80008093
	StatusFrameworkMissingFailure           StatusCode = 0x80008096
	StatusHostAPIBufferTooSmall             StatusCode = 0x80008098
	StatusHostInvalidState                  StatusCode = 0x800080a3
	StatusHostPropertyNotFound              StatusCode = 0x800080a4
	StatusCoreHostIncompatibleConfig        StatusCode = 0x800080a5
	StatusHostAPIUnsupportedScenario        StatusCode = 0x800080a6
)

var statusNames = map[StatusCode]string{
	StatusSuccess:                           "Success",
	StatusSuccessHostAlreadyInitialized:     "Success_HostAlreadyInitialized",
	StatusSuccessDifferentRuntimeProperties: "Success_DifferentRuntimeProperties",
	StatusInvalidArgFailure:                 "InvalidArgFailure",
	StatusCoreHostLibLoadFailure:            "CoreHostLibLoadFailure",
	StatusCoreHostLibMissingFailure:         "CoreHostLibMissingFailure",
	StatusCoreHostEntryPointFailure:         "CoreHostEntryPointFailure",
	StatusCoreClrResolveFailure:             "CoreClrResolveFailure",
	StatusCoreClrBindFailure:                "CoreClrBindFailure",
	StatusCoreClrInitFailure:                "CoreClrInitFailure",
	StatusInvalidConfigFile:                 "InvalidConfigFile",
	StatusFrameworkMissingFailure:           "FrameworkMissingFailure",
	StatusHostAPIBufferTooSmall:             "HostApiBufferTooSmall",
	StatusHostInvalidState:                  "HostInvalidState",
	StatusHostPropertyNotFound:              "HostPropertyNotFound",
	StatusCoreHostIncompatibleConfig:        "CoreHostIncompatibleConfig",
	StatusHostAPIUnsupportedScenario:        "HostApiUnsupportedScenario",
}

// Failed reports whether the code is a failure. The hosting components use
// the high bit for failures; 1 and 2 are success variants.
func (s StatusCode) Failed() bool {
	return s&0x80000000 != 0
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("0x%08x (%s)", uint32(s), name)
	}
	return fmt.Sprintf("0x%08x", uint32(s))
}
