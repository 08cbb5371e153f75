//go:build darwin || freebsd || linux

package dynlib

import "github.com/ebitengine/purego"

func openHandle(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_LOCAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func closeHandle(handle uintptr) error {
	return purego.Dlclose(handle)
}
