//go:build windows

package clr

/*
#include "hostfxr_abi.h"
*/
import "C"

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

// toCharT converts to the UTF-16 char_t hostfxr uses on Windows. The buffer
// is Go memory and stays alive until the returned func runs.
func toCharT(s string) (*C.modcoreclr_char_t, func()) {
	p, err := windows.UTF16PtrFromString(s)
	if err != nil {
		return nil, func() {}
	}
	return (*C.modcoreclr_char_t)(unsafe.Pointer(p)), func() { runtime.KeepAlive(p) }
}

func toOptionalCharT(s string) (*C.modcoreclr_char_t, func()) {
	if s == "" {
		return nil, func() {}
	}
	return toCharT(s)
}

func fromCharT(p *C.modcoreclr_char_t) string {
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(p)))
}
