package clr

import "fmt"

// NethostLocator asks nethost's get_hostfxr_path for the hostfxr location.
// nethost applies the platform conventions (app-local, DOTNET_ROOT, install
// location registration, default install directories).
type NethostLocator struct {
	// LibraryPath is the path of libnethost.
	LibraryPath string
	// AssemblyPath optionally points nethost at an app-local runtime.
	AssemblyPath string
	// DotnetRoot optionally overrides the dotnet root.
	DotnetRoot string
	// Open defaults to OpenLibrary.
	Open OpenFunc
	// Call defaults to the native get_hostfxr_path trampoline.
	Call func(fn uintptr, assemblyPath, dotnetRoot string) (string, int, StatusCode)
}

// Locate implements Locator.
func (l NethostLocator) Locate() (string, error) {
	open := l.Open
	if open == nil {
		open = OpenLibrary
	}
	call := l.Call
	if call == nil {
		call = getHostfxrPath
	}

	library, err := open(l.LibraryPath)
	if err != nil {
		return "", fmt.Errorf("%w: nethost: %w", ErrRuntimeNotFound, err)
	}
	defer library.Close()

	fn, err := library.Lookup(ExportGetHostfxrPath)
	if err != nil {
		return "", fmt.Errorf("%w: nethost: %w", ErrRuntimeNotFound, err)
	}

	path, size, status := call(fn, l.AssemblyPath, l.DotnetRoot)
	switch {
	case status == StatusHostAPIBufferTooSmall:
		return "", fmt.Errorf("%w: nethost needs %d characters, buffer holds %d", ErrPathTooLong, size, maxPath)
	case status.Failed():
		return "", fmt.Errorf("%w: get_hostfxr_path returned %s", ErrRuntimeNotFound, status)
	case path == "":
		return "", fmt.Errorf("%w: get_hostfxr_path returned an empty path", ErrRuntimeNotFound)
	}
	return path, nil
}
