package module

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/dynlib"
	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/journal"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	opts  []clr.Options
	rt    *clr.Runtime
	err   error
}

func (f *fakeRunner) Run(opts clr.Options) (*clr.Runtime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.opts = append(f.opts, opts)
	time.Sleep(time.Millisecond)
	return f.rt, f.err
}

func testConfig() *config.Config {
	return config.Default(config.Dirs{Conf: "/etc/freeswitch", Mod: "/usr/lib/freeswitch/mod"})
}

func TestLoadRegistersOnce(t *testing.T) {
	runner := &fakeRunner{rt: &clr.Runtime{
		HostfxrPath: "/usr/share/dotnet/host/fxr/8.0.0/libhostfxr.so",
		Callbacks:   clr.CallbackTable{Command: 0x10, Application: 0x20, Config: 0x30},
	}}
	h := host.NewLocalHost(nil)
	m := New(Options{Config: testConfig(), Registrar: h, Runner: runner})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Load())
		}()
	}
	wg.Wait()
	require.NoError(t, m.Load())

	assert.Equal(t, 1, runner.calls)
	st := m.Status()
	assert.Equal(t, StateLoaded, st.State)
	assert.Equal(t, host.Registered{Command: true, Application: true, ConfigSearch: true}, st.Registered)
	assert.Equal(t, "/usr/share/dotnet/host/fxr/8.0.0/libhostfxr.so", st.Hostfxr)
	assert.False(t, st.LoadedAt.IsZero())
	assert.Equal(t, host.DefaultSections, h.Bound())
	assert.Equal(t, clr.CallbackTable{Command: 0x10, Application: 0x20, Config: 0x30}, m.Callbacks())

	opts := runner.opts[0]
	assert.Equal(t, "/usr/lib/freeswitch/mod/LoaderRuntime/Loader.runtimeconfig.json", opts.RuntimeConfigPath)
	assert.Equal(t, clr.EntryPoint{
		AssemblyPath:     "/usr/lib/freeswitch/mod/LoaderRuntime/Loader.dll",
		TypeName:         "FreeSWITCH.Loader, Loader",
		MethodName:       "Load",
		DelegateTypeName: "FreeSWITCH.Loader+LoadDelegate, Loader",
	}, opts.EntryPoint)
}

func TestLoadOnlyCommand(t *testing.T) {
	runner := &fakeRunner{rt: &clr.Runtime{Callbacks: clr.CallbackTable{Command: 0x10}}}
	h := host.NewLocalHost(nil)
	m := New(Options{Config: testConfig(), Registrar: h, Runner: runner})

	require.NoError(t, m.Load())
	_, ok := h.Command("coreclr")
	assert.True(t, ok)
	_, ok = h.Application("coreclr")
	assert.False(t, ok)
	assert.Equal(t, host.Section(0), h.Bound())
	assert.Equal(t, host.Registered{Command: true}, m.Status().Registered)
}

func TestLoadEmptyTable(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	runner := &fakeRunner{rt: &clr.Runtime{}}
	m := New(Options{Config: testConfig(), Registrar: host.NewLocalHost(nil), Runner: runner, Logger: zap.New(core)})

	require.NoError(t, m.Load())
	assert.Equal(t, StateLoaded, m.Status().State)
	assert.Equal(t, 1, logs.FilterMessage("Loader provided no callbacks; nothing to register").Len())
}

func TestLoadFailure(t *testing.T) {
	bootErr := &clr.BootstrapError{Stage: clr.StageLocate, Err: clr.ErrRuntimeNotFound}
	runner := &fakeRunner{err: bootErr}
	h := host.NewLocalHost(nil)
	m := New(Options{Config: testConfig(), Registrar: h, Runner: runner})

	err := m.Load()
	assert.ErrorIs(t, err, clr.ErrRuntimeNotFound)
	assert.ErrorIs(t, m.Load(), clr.ErrRuntimeNotFound)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, StateFailed, m.Status().State)
	assert.Equal(t, host.Section(0), h.Bound())
}

func TestLoadRegistrationFailure(t *testing.T) {
	h := host.NewLocalHost(nil)
	require.NoError(t, h.RegisterCommand(host.Command{Name: "coreclr"}))

	runner := &fakeRunner{rt: &clr.Runtime{Callbacks: clr.CallbackTable{Command: 0x10, Config: 0x30}}}
	m := New(Options{Config: testConfig(), Registrar: h, Runner: runner})

	err := m.Load()
	assert.ErrorIs(t, err, host.ErrDuplicateName)
	st := m.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, host.Registered{ConfigSearch: true}, st.Registered)
}

func TestLoadInvalidSections(t *testing.T) {
	cfg := testConfig()
	cfg.Host.Sections = []string{"phrases"}
	runner := &fakeRunner{rt: &clr.Runtime{}}
	m := New(Options{Config: cfg, Registrar: host.NewLocalHost(nil), Runner: runner})

	assert.Error(t, m.Load())
	assert.Zero(t, runner.calls)
}

func TestLoadMissingRegistrar(t *testing.T) {
	m := New(Options{Config: testConfig(), Runner: &fakeRunner{}})
	assert.Error(t, m.Load())
	assert.Equal(t, StateFailed, m.Status().State)
}

func TestLoadJournal(t *testing.T) {
	j, err := journal.Open(":memory:", nil)
	require.NoError(t, err)

	runner := &fakeRunner{err: &clr.BootstrapError{
		Stage: clr.StageOpen,
		Path:  "/opt/dotnet/host/fxr/8.0.0/libhostfxr.so",
		Err:   errors.New("dlopen failed"),
	}}
	m := New(Options{Config: testConfig(), Registrar: host.NewLocalHost(nil), Runner: runner, Journal: j})
	require.Error(t, m.Load())

	runs, err := j.Recent(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.Status().RunID, runs[0].ID.String())
	assert.Equal(t, journal.StatusFailed, runs[0].Status)
	assert.Equal(t, "open", runs[0].FailedStage)

	require.NoError(t, m.Shutdown())
}

func TestShutdown(t *testing.T) {
	runner := &fakeRunner{rt: &clr.Runtime{Callbacks: clr.CallbackTable{Command: 1}}}
	m := New(Options{Config: testConfig(), Registrar: host.NewLocalHost(nil), Runner: runner})
	require.NoError(t, m.Load())

	require.NoError(t, m.Shutdown())
	assert.Equal(t, StateUnloaded, m.Status().State)
	assert.ErrorIs(t, m.Load(), ErrShutdown)
	assert.Equal(t, 1, runner.calls)
	require.NoError(t, m.Shutdown())
}

func TestShutdownBeforeLoad(t *testing.T) {
	runner := &fakeRunner{rt: &clr.Runtime{}}
	m := New(Options{Config: testConfig(), Registrar: host.NewLocalHost(nil), Runner: runner})

	require.NoError(t, m.Shutdown())
	assert.ErrorIs(t, m.Load(), ErrShutdown)
	assert.Zero(t, runner.calls)
}

func TestLocatorChain(t *testing.T) {
	chain, ok := Locator(config.RuntimeConfig{
		HostfxrPath: "/opt/fxr/libhostfxr.so",
		NethostPath: "/opt/libnethost.so",
		DotnetRoot:  "/opt/dotnet",
		Probe:       true,
	}, "/mod/Loader.dll").(clr.ChainLocator)
	require.True(t, ok)
	require.Len(t, chain, 3)
	assert.Equal(t, clr.StaticLocator("/opt/fxr/libhostfxr.so"), chain[0])
	assert.Equal(t, clr.NethostLocator{LibraryPath: "/opt/libnethost.so", AssemblyPath: "/mod/Loader.dll", DotnetRoot: "/opt/dotnet"}, chain[1])
	assert.Equal(t, clr.ProbeLocator{DotnetRoot: "/opt/dotnet"}, chain[2])

	defaults, ok := Locator(testConfig().Runtime, "/mod/Loader.dll").(clr.ChainLocator)
	require.True(t, ok)
	require.Len(t, defaults, 2)
	assert.Equal(t, clr.NethostLocator{LibraryPath: dynlib.PlatformName("nethost"), AssemblyPath: "/mod/Loader.dll"}, defaults[0])
	assert.Equal(t, clr.ProbeLocator{}, defaults[1])

	empty, ok := Locator(config.RuntimeConfig{}, "").(clr.ChainLocator)
	require.True(t, ok)
	_, err := empty.Locate()
	assert.ErrorIs(t, err, clr.ErrRuntimeNotFound)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Unloaded", StateUnloaded.String())
	assert.Equal(t, "Loading", StateLoading.String())
	assert.Equal(t, "Loaded", StateLoaded.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "Unknown", State(42).String())
}
