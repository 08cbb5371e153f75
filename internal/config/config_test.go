package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrreia/modcoreclr/internal/dynlib"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	dirs := Dirs{Conf: "/etc/freeswitch", Mod: "/usr/lib/freeswitch/mod"}
	cfg := Default(dirs)

	assert.Equal(t, "/usr/lib/freeswitch/mod/LoaderRuntime/Loader.dll", cfg.Loader.AssemblyPath)
	assert.Equal(t, "/usr/lib/freeswitch/mod/LoaderRuntime/Loader.runtimeconfig.json", cfg.Loader.RuntimeConfigPath)
	assert.Equal(t, "FreeSWITCH.Loader, Loader", cfg.Loader.TypeName)
	assert.Equal(t, "Load", cfg.Loader.MethodName)
	assert.Equal(t, "FreeSWITCH.Loader+LoadDelegate, Loader", cfg.Loader.DelegateTypeName)
	assert.Equal(t, "coreclr", cfg.Host.CommandName)
	assert.Equal(t, "coreclr", cfg.Host.ApplicationName)
	assert.Equal(t, []string{"configuration", "directory", "dialplan"}, cfg.Host.Sections)
	assert.Equal(t, dynlib.PlatformName("nethost"), cfg.Runtime.NethostPath)
	assert.True(t, cfg.Runtime.Probe)
	assert.False(t, cfg.Journal.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestSearchPaths(t *testing.T) {
	assert.Equal(t, []string{
		filepath.Join("/etc/fs", "autoload_configs", "coreclr.yaml"),
		filepath.Join("/etc/fs", "autoload_configs", "coreclr.yml"),
		filepath.Join("/etc/fs", "autoload_configs", "coreclr.json"),
		filepath.Join("configs", "coreclr.yaml"),
	}, SearchPaths(Dirs{Conf: "/etc/fs"}))

	assert.Equal(t, []string{filepath.Join("configs", "coreclr.yaml")}, SearchPaths(Dirs{}))
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	conf := t.TempDir()
	writeFile(t, filepath.Join(conf, "autoload_configs", "coreclr.yaml"), `
loader:
  assembly_path: /opt/loader/Loader.dll
host:
  command_name: dotnet
log:
  level: DEBUG
`)

	cfg, path, err := Load(Dirs{Conf: conf, Mod: "/mod"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(conf, "autoload_configs", "coreclr.yaml"), path)
	assert.Equal(t, "/opt/loader/Loader.dll", cfg.Loader.AssemblyPath)
	assert.Equal(t, "/mod/LoaderRuntime/Loader.runtimeconfig.json", cfg.Loader.RuntimeConfigPath)
	assert.Equal(t, "dotnet", cfg.Host.CommandName)
	assert.Equal(t, "coreclr", cfg.Host.ApplicationName)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadJSON(t *testing.T) {
	conf := t.TempDir()
	writeFile(t, filepath.Join(conf, "autoload_configs", "coreclr.json"), `{
  "runtime": {"hostfxr_path": "/opt/dotnet/host/fxr/8.0.0/libhostfxr.so", "probe": false},
  "journal": {"enabled": true, "path": "/tmp/journal.db"}
}`)

	cfg, path, err := Load(Dirs{Conf: conf}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(conf, "autoload_configs", "coreclr.json"), path)
	assert.Equal(t, "/opt/dotnet/host/fxr/8.0.0/libhostfxr.so", cfg.Runtime.HostfxrPath)
	assert.False(t, cfg.Runtime.Probe)
	assert.True(t, cfg.Journal.Enabled)
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, path, err := Load(Dirs{Conf: t.TempDir(), Mod: "/mod"}, env(nil))
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(Dirs{Mod: "/mod"}).Loader, cfg.Loader)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom.yml")
	writeFile(t, explicit, "loader:\n  method_name: Start\n")

	cfg, path, err := Load(Dirs{}, env(map[string]string{EnvConfig: explicit}))
	require.NoError(t, err)
	assert.Equal(t, explicit, path)
	assert.Equal(t, "Start", cfg.Loader.MethodName)

	_, _, err = Load(Dirs{}, env(map[string]string{EnvConfig: filepath.Join(dir, "missing.yaml")}))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	conf := t.TempDir()
	writeFile(t, filepath.Join(conf, "autoload_configs", "coreclr.yaml"), "loader:\n  asembly_path: typo\n")

	_, _, err := Load(Dirs{Conf: conf}, env(nil))
	assert.Error(t, err)
}

func TestLoadEmptyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coreclr.yaml")
	writeFile(t, path, "")

	cfg, err := LoadFile(path, Dirs{Mod: "/mod"})
	require.NoError(t, err)
	assert.Equal(t, Default(Dirs{Mod: "/mod"}), cfg)
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coreclr.toml")
	writeFile(t, path, "")

	_, err := LoadFile(path, Dirs{})
	assert.ErrorContains(t, err, "unsupported extension")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default(Dirs{Mod: "/mod"})
	cfg.ApplyEnv(env(map[string]string{
		EnvLoaderPath:    "/env/Loader.dll",
		EnvRuntimeConfig: "/env/Loader.runtimeconfig.json",
		EnvHostfxrPath:   "/env/libhostfxr.so",
		EnvLogLevel:      "Warn",
		EnvDotnetRoot:    "/usr/share/dotnet",
	}))

	assert.Equal(t, "/env/Loader.dll", cfg.Loader.AssemblyPath)
	assert.Equal(t, "/env/Loader.runtimeconfig.json", cfg.Loader.RuntimeConfigPath)
	assert.Equal(t, "/env/libhostfxr.so", cfg.Runtime.HostfxrPath)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/usr/share/dotnet", cfg.Runtime.DotnetRoot)

	cfg.Runtime.DotnetRoot = "/opt/dotnet"
	cfg.ApplyEnv(env(map[string]string{EnvDotnetRoot: "/usr/share/dotnet"}))
	assert.Equal(t, "/opt/dotnet", cfg.Runtime.DotnetRoot)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing assembly", func(c *Config) { c.Loader.AssemblyPath = "" }, "assembly_path"},
		{"missing type", func(c *Config) { c.Loader.TypeName = "" }, "type_name"},
		{"command with space", func(c *Config) { c.Host.CommandName = "core clr" }, "command_name"},
		{"unknown section", func(c *Config) { c.Host.Sections = []string{"phrases"} }, "sections"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "level"},
		{"journal without path", func(c *Config) { c.Journal = JournalConfig{Enabled: true} }, "path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(Dirs{Mod: "/mod"})
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.field)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(old)) })
}
