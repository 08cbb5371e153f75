// Package bridge is the cgo boundary between the host shim and the Go
// module. This file holds the values shared with modcoreclr_abi.h.
package bridge

// ABIVersion must match MODCORECLR_ABI_VERSION.
const ABIVersion = 1

// Status codes matching modcoreclr_status_t
type Status int32

const (
	StatusOK Status = iota
	StatusInvalid
	StatusConfig
	StatusBootstrap
	StatusRegister
	StatusPanic
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalid:
		return "invalid"
	case StatusConfig:
		return "config"
	case StatusBootstrap:
		return "bootstrap"
	case StatusRegister:
		return "register"
	case StatusPanic:
		return "panic"
	default:
		return "unknown"
	}
}
