package clr

import (
	"errors"
	"fmt"
	"os"

	"github.com/corrreia/modcoreclr/internal/dynlib"
)

// Locator discovers the path of the hostfxr library.
type Locator interface {
	Locate() (string, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func() (string, error)

// Locate calls f.
func (f LocatorFunc) Locate() (string, error) {
	return f()
}

// StaticLocator returns a configured path after checking that it exists.
type StaticLocator string

// Locate implements Locator.
func (l StaticLocator) Locate() (string, error) {
	path := string(l)
	if path == "" {
		return "", fmt.Errorf("%w: no hostfxr path configured", ErrRuntimeNotFound)
	}
	if len(path) >= maxPath {
		return "", fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntimeNotFound, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrRuntimeNotFound, path)
	}
	return path, nil
}

// ChainLocator tries each locator in order and returns the first path found.
type ChainLocator []Locator

// Locate implements Locator.
func (c ChainLocator) Locate() (string, error) {
	if len(c) == 0 {
		return "", fmt.Errorf("%w: no locator configured", ErrRuntimeNotFound)
	}

	var errs []error
	for _, locator := range c {
		path, err := locator.Locate()
		if err == nil {
			return path, nil
		}
		errs = append(errs, err)
	}

	joined := errors.Join(errs...)
	if errors.Is(joined, ErrRuntimeNotFound) || errors.Is(joined, ErrPathTooLong) {
		return "", joined
	}
	return "", fmt.Errorf("%w: %w", ErrRuntimeNotFound, joined)
}

// Library is the part of an opened shared library the bootstrap needs.
type Library interface {
	Path() string
	Lookup(name string) (uintptr, error)
	Close() error
}

// OpenFunc opens a shared library.
type OpenFunc func(path string) (Library, error)

// OpenLibrary opens path with dynlib.
func OpenLibrary(path string) (Library, error) {
	library, err := dynlib.Open(path)
	if err != nil {
		return nil, err
	}
	return library, nil
}
