// Package module drives the load and shutdown of the hosting module: it
// bootstraps the managed runtime once and registers the callbacks it
// returns with the host.
package module

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/journal"
)

// State of the module
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateLoading:
		return "Loading"
	case StateLoaded:
		return "Loaded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrShutdown is returned by Load after Shutdown.
var ErrShutdown = errors.New("module: shut down")

// Runner runs the bootstrap sequence. *clr.Bootstrapper implements it.
type Runner interface {
	Run(opts clr.Options) (*clr.Runtime, error)
}

// Options wires a Module. Config and Registrar are required.
type Options struct {
	Config    *config.Config
	Registrar host.Registrar
	// Runner defaults to a clr.Bootstrapper using Locator.
	Runner Runner
	// Journal, when set, receives every bootstrap attempt.
	Journal *journal.Journal
	Logger  *zap.Logger
}

// Module is the lifecycle object.
type Module struct {
	mu         sync.RWMutex
	once       sync.Once
	state      State
	err        error
	table      clr.CallbackTable
	runtime    *clr.Runtime
	registered host.Registered
	runID      string
	loadedAt   time.Time

	cfg       *config.Config
	registrar host.Registrar
	runner    Runner
	journal   *journal.Journal
	logger    *zap.Logger
	observer  clr.Observer
}

// New returns an unloaded Module.
func New(opts Options) *Module {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Module{
		cfg:       opts.Config,
		registrar: opts.Registrar,
		runner:    opts.Runner,
		journal:   opts.Journal,
		logger:    logger,
	}
	switch b := m.runner.(type) {
	case nil:
		if m.cfg != nil {
			m.runner = NewBootstrapper(m.cfg, logger.Named("clr"), m.observe)
		}
	case *clr.Bootstrapper:
		if b.Observer == nil {
			b.Observer = m.observe
		}
	}
	return m
}

// NewBootstrapper builds the bootstrapper described by cfg.
func NewBootstrapper(cfg *config.Config, logger *zap.Logger, observer clr.Observer) *clr.Bootstrapper {
	b := clr.NewBootstrapper(Locator(cfg.Runtime, cfg.Loader.AssemblyPath), logger)
	b.Observer = observer
	return b
}

// Locator returns the runtime locators enabled by rc, in order: explicit
// hostfxr path, nethost, probing.
func Locator(rc config.RuntimeConfig, assemblyPath string) clr.Locator {
	var chain clr.ChainLocator
	if rc.HostfxrPath != "" {
		chain = append(chain, clr.StaticLocator(rc.HostfxrPath))
	}
	if rc.NethostPath != "" {
		chain = append(chain, clr.NethostLocator{
			LibraryPath:  rc.NethostPath,
			AssemblyPath: assemblyPath,
			DotnetRoot:   rc.DotnetRoot,
		})
	}
	if rc.Probe {
		chain = append(chain, clr.ProbeLocator{DotnetRoot: rc.DotnetRoot})
	}
	return chain
}

// BootstrapOptions returns the bootstrap options described by cfg.
func BootstrapOptions(cfg *config.Config) clr.Options {
	return clr.Options{
		RuntimeConfigPath: cfg.Loader.RuntimeConfigPath,
		Parameters:        clr.InitializeParameters{DotnetRoot: cfg.Runtime.DotnetRoot},
		EntryPoint: clr.EntryPoint{
			AssemblyPath:     cfg.Loader.AssemblyPath,
			TypeName:         cfg.Loader.TypeName,
			MethodName:       cfg.Loader.MethodName,
			DelegateTypeName: cfg.Loader.DelegateTypeName,
		},
	}
}

// Load bootstraps the runtime and registers the callbacks. Only the first
// call does any work; later calls return its result.
func (m *Module) Load() error {
	m.once.Do(m.load)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *Module) load() {
	m.setState(StateLoading, nil)

	if m.cfg == nil || m.registrar == nil || m.runner == nil {
		m.setState(StateFailed, errors.New("module: missing config, registrar or runner"))
		return
	}

	sections, err := host.ParseSections(m.cfg.Host.Sections)
	if err != nil {
		m.setState(StateFailed, fmt.Errorf("module: %w", err))
		return
	}

	var rec *journal.Recorder
	if m.journal != nil {
		rec, err = m.journal.Begin(m.cfg.Loader.AssemblyPath, m.cfg.Loader.RuntimeConfigPath)
		if err != nil {
			m.logger.Warn("Unable to record bootstrap", zap.Error(err))
		}
	}
	m.mu.Lock()
	m.observer = nil
	if rec != nil {
		m.observer = rec.Observe
		m.runID = rec.ID().String()
	}
	m.mu.Unlock()

	rt, err := m.runner.Run(BootstrapOptions(m.cfg))
	if err != nil {
		m.finish(rec, "", clr.CallbackTable{}, err)
		m.setState(StateFailed, err)
		return
	}

	m.logger.Info("Loader returned callbacks", zap.Stringer("callbacks", rt.Callbacks))
	if rt.Callbacks.Empty() {
		m.logger.Warn("Loader provided no callbacks; nothing to register")
	}

	registered, err := host.Register(m.registrar, rt.Callbacks, host.Names{
		Command:     m.cfg.Host.CommandName,
		Application: m.cfg.Host.ApplicationName,
		Sections:    sections,
	})
	m.finish(rec, rt.HostfxrPath, rt.Callbacks, err)

	m.mu.Lock()
	m.runtime = rt
	m.table = rt.Callbacks
	m.registered = registered
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Unable to register callbacks", zap.Error(err))
		m.setState(StateFailed, err)
		return
	}
	m.mu.Lock()
	m.loadedAt = time.Now()
	m.mu.Unlock()
	m.setState(StateLoaded, nil)
}

// observe forwards to the journal recorder of the current run.
func (m *Module) observe(stage clr.Stage, elapsed time.Duration, err error) {
	m.mu.RLock()
	obs := m.observer
	m.mu.RUnlock()
	if obs != nil {
		obs(stage, elapsed, err)
	}
}

func (m *Module) finish(rec *journal.Recorder, hostfxrPath string, table clr.CallbackTable, err error) {
	if rec == nil {
		return
	}
	if ferr := rec.Finish(hostfxrPath, table, err); ferr != nil {
		m.logger.Warn("Unable to record bootstrap", zap.Error(ferr))
	}
}

func (m *Module) setState(s State, err error) {
	m.mu.Lock()
	m.state = s
	m.err = err
	m.mu.Unlock()
}

// Shutdown marks the module unloaded and closes the journal. The managed
// runtime and the hosting library stay resident: hostfxr does not support
// unloading a runtime once started.
func (m *Module) Shutdown() error {
	// Consume the once so a Load after Shutdown does not bootstrap.
	m.once.Do(func() {})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnloaded
	if m.err == nil {
		m.err = ErrShutdown
	}
	m.observer = nil

	if m.journal != nil {
		err := m.journal.Close()
		m.journal = nil
		if err != nil {
			return fmt.Errorf("close journal: %w", err)
		}
	}
	m.logger.Info("Module shut down; managed runtime remains loaded")
	return nil
}

// Status is a snapshot of the module.
type Status struct {
	State      State
	Err        error
	Callbacks  clr.CallbackTable
	Registered host.Registered
	Hostfxr    string
	RunID      string
	LoadedAt   time.Time
}

func (m *Module) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{
		State:      m.state,
		Err:        m.err,
		Callbacks:  m.table,
		Registered: m.registered,
		RunID:      m.runID,
		LoadedAt:   m.loadedAt,
	}
	if m.runtime != nil {
		s.Hostfxr = m.runtime.HostfxrPath
	}
	return s
}

// Callbacks returns the table obtained from the loader, zero before a
// successful bootstrap.
func (m *Module) Callbacks() clr.CallbackTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table
}
