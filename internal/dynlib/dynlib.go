// Package dynlib opens shared libraries by path and resolves their exported symbols.
// Path discovery is not done here; callers hand in the exact file to load.
package dynlib

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var (
	// ErrLibraryNotFound is returned when a path does not resolve to a loadable library.
	ErrLibraryNotFound = errors.New("dynlib: library not found")
	// ErrSymbolNotFound is returned when a library has no export with the requested name.
	ErrSymbolNotFound = errors.New("dynlib: symbol not found")
	// ErrLibraryClosed is returned when a closed library is used.
	ErrLibraryClosed = errors.New("dynlib: library is closed")
)

// Library is an opened shared library.
type Library struct {
	mu     sync.RWMutex
	path   string
	handle uintptr
	closed bool
}

// PlatformName returns the file name the platform gives the shared library
// base, e.g. libnethost.so, libnethost.dylib or nethost.dll. Open resolves a
// bare name through the loader's search path.
func PlatformName(base string) string {
	switch runtime.GOOS {
	case "windows":
		return base + ".dll"
	case "darwin":
		return "lib" + base + ".dylib"
	default:
		return "lib" + base + ".so"
	}
}

// Open loads the shared library at path. Load-time initializers of the
// library run as a side effect.
func Open(path string) (*Library, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrLibraryNotFound)
	}

	handle, err := openHandle(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLibraryNotFound, path, err)
	}
	return &Library{path: path, handle: handle}, nil
}

// Path returns the path the library was opened from.
func (library *Library) Path() string {
	return library.path
}

// Lookup resolves the address of an exported symbol.
func (library *Library) Lookup(name string) (uintptr, error) {
	library.mu.RLock()
	defer library.mu.RUnlock()

	if library.closed {
		return 0, ErrLibraryClosed
	}

	addr, err := lookupSymbol(library.handle, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s in %s: %v", ErrSymbolNotFound, name, library.path, err)
	}
	if addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s: null address", ErrSymbolNotFound, name, library.path)
	}
	return addr, nil
}

// Close unloads the library. Calling Close more than once is a no-op.
func (library *Library) Close() error {
	library.mu.Lock()
	defer library.mu.Unlock()

	if library.closed {
		return nil
	}
	library.closed = true

	if library.handle == 0 {
		return nil
	}
	err := closeHandle(library.handle)
	library.handle = 0
	if err != nil {
		return fmt.Errorf("dynlib: close %s: %w", library.path, err)
	}
	return nil
}
