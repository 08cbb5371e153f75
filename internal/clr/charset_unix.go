//go:build !windows

package clr

/*
#include "hostfxr_abi.h"
*/
import "C"

import "unsafe"

func toCharT(s string) (*C.modcoreclr_char_t, func()) {
	cs := C.CString(s)
	return (*C.modcoreclr_char_t)(unsafe.Pointer(cs)), func() { C.free(unsafe.Pointer(cs)) }
}

func toOptionalCharT(s string) (*C.modcoreclr_char_t, func()) {
	if s == "" {
		return nil, func() {}
	}
	return toCharT(s)
}

func fromCharT(p *C.modcoreclr_char_t) string {
	return C.GoString((*C.char)(unsafe.Pointer(p)))
}
