package clr

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/mod/semver"
)

// ProbeLocator finds hostfxr by the dotnet install conventions without
// loading nethost: explicit root, DOTNET_ROOT_<ARCH>, DOTNET_ROOT, the
// install_location registration files, then the default install
// directories. Within a root the highest version under host/fxr wins.
type ProbeLocator struct {
	DotnetRoot string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// InstallLocationDir defaults to /etc/dotnet on unix.
	InstallLocationDir string
	// SearchDirs replaces the default install directories when set.
	SearchDirs []string
	// GOOS and GOARCH default to the running platform.
	GOOS   string
	GOARCH string
}

// Locate implements Locator.
func (l ProbeLocator) Locate() (string, error) {
	roots := l.roots()
	name := hostfxrLibraryName(l.goos())
	for _, root := range roots {
		if path, ok := newestHostfxr(root, name); ok {
			if len(path) >= maxPath {
				return "", fmt.Errorf("%w: %s", ErrPathTooLong, path)
			}
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s under host/fxr in [%s]", ErrRuntimeNotFound, name, strings.Join(roots, ", "))
}

func (l ProbeLocator) goos() string {
	if l.GOOS != "" {
		return l.GOOS
	}
	return runtime.GOOS
}

func (l ProbeLocator) goarch() string {
	if l.GOARCH != "" {
		return l.GOARCH
	}
	return runtime.GOARCH
}

func (l ProbeLocator) getenv(key string) string {
	if l.Getenv != nil {
		return l.Getenv(key)
	}
	return os.Getenv(key)
}

func (l ProbeLocator) roots() []string {
	var roots []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		roots = append(roots, dir)
	}

	arch := dotnetArch(l.goarch())
	add(l.DotnetRoot)
	add(l.getenv("DOTNET_ROOT_" + strings.ToUpper(arch)))
	add(l.getenv("DOTNET_ROOT"))

	if l.goos() != "windows" {
		dir := l.InstallLocationDir
		if dir == "" {
			dir = "/etc/dotnet"
		}
		add(readInstallLocation(filepath.Join(dir, "install_location_"+arch)))
		add(readInstallLocation(filepath.Join(dir, "install_location")))
	}

	dirs := l.SearchDirs
	if dirs == nil {
		dirs = defaultInstallDirs(l.goos(), l.getenv)
	}
	for _, dir := range dirs {
		add(dir)
	}
	return roots
}

// readInstallLocation returns the first non-empty line of an install
// location file, or "" if there is none.
func readInstallLocation(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			return line
		}
	}
	return ""
}

// newestHostfxr returns the library in the highest semantic version
// directory under root/host/fxr that contains it.
func newestHostfxr(root, name string) (string, bool) {
	fxrDir := filepath.Join(root, "host", "fxr")
	entries, err := os.ReadDir(fxrDir)
	if err != nil {
		return "", false
	}

	best := ""
	bestPath := ""
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		version := "v" + entry.Name()
		if !semver.IsValid(version) {
			continue
		}
		candidate := filepath.Join(fxrDir, entry.Name(), name)
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		if best == "" || semver.Compare(version, best) > 0 {
			best = version
			bestPath = candidate
		}
	}
	return bestPath, bestPath != ""
}

func hostfxrLibraryName(goos string) string {
	switch goos {
	case "windows":
		return "hostfxr.dll"
	case "darwin":
		return "libhostfxr.dylib"
	default:
		return "libhostfxr.so"
	}
}

func dotnetArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

func defaultInstallDirs(goos string, getenv func(string) string) []string {
	switch goos {
	case "windows":
		programFiles := getenv("ProgramFiles")
		if programFiles == "" {
			programFiles = `C:\Program Files`
		}
		return []string{filepath.Join(programFiles, "dotnet")}
	case "darwin":
		return []string{"/usr/local/share/dotnet"}
	default:
		return []string{"/usr/share/dotnet", "/usr/lib/dotnet", "/usr/lib64/dotnet", "/usr/local/share/dotnet"}
	}
}
