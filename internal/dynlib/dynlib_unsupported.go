//go:build !darwin && !freebsd && !linux && !windows

package dynlib

import "errors"

var errUnsupported = errors.New("dynamic libraries are only supported on darwin, freebsd, linux, and windows")

func openHandle(path string) (uintptr, error) {
	_ = path
	return 0, errUnsupported
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	_, _ = handle, name
	return 0, errUnsupported
}

func closeHandle(handle uintptr) error {
	_ = handle
	return errUnsupported
}
