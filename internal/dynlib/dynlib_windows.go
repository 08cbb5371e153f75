//go:build windows

package dynlib

import "golang.org/x/sys/windows"

func openHandle(path string) (uintptr, error) {
	handle, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return 0, err
	}
	return uintptr(handle), nil
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func closeHandle(handle uintptr) error {
	return windows.FreeLibrary(windows.Handle(handle))
}
