package clr

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options are the inputs of one bootstrap.
type Options struct {
	// RuntimeConfigPath is the loader's runtimeconfig.json.
	RuntimeConfigPath string
	// Parameters are passed to hostfxr_initialize_for_runtime_config when set.
	Parameters InitializeParameters
	// EntryPoint is the managed loader method returning the callback table.
	EntryPoint EntryPoint
}

// Observer receives the outcome and duration of every executed stage.
type Observer func(stage Stage, elapsed time.Duration, err error)

// Runtime is the result of a successful bootstrap. The runtime context is
// already closed; only the hosting library stays loaded.
type Runtime struct {
	HostfxrPath string
	Library     Library
	Callbacks   CallbackTable
}

// Bootstrapper runs the hostfxr bootstrap sequence. Every stage either
// succeeds or aborts the sequence; nothing is retried.
type Bootstrapper struct {
	Locator  Locator
	Open     OpenFunc
	Binder   Binder
	Logger   *zap.Logger
	Observer Observer
}

// NewBootstrapper returns a Bootstrapper using dynlib and the native binder.
func NewBootstrapper(locator Locator, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		Locator: locator,
		Open:    OpenLibrary,
		Binder:  NativeBinder(),
		Logger:  logger,
	}
}

// Run executes the bootstrap. The managed entry point is invoked at most
// once, and a runtime context obtained along the way is closed exactly once
// before Run returns.
func (b *Bootstrapper) Run(opts Options) (*Runtime, error) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	open := b.Open
	if open == nil {
		open = OpenLibrary
	}
	binder := b.Binder
	if binder == nil {
		binder = NativeBinder()
	}

	// 1. locate
	start := time.Now()
	if b.Locator == nil {
		err := &BootstrapError{Stage: StageLocate, Err: fmt.Errorf("%w: no locator", ErrRuntimeNotFound)}
		b.observe(StageLocate, start, err)
		log.Error("Unable to locate Core HostFXR", zap.Error(err))
		return nil, err
	}
	hostfxrPath, err := b.Locator.Locate()
	if err != nil {
		if !errors.Is(err, ErrRuntimeNotFound) && !errors.Is(err, ErrPathTooLong) {
			err = fmt.Errorf("%w: %w", ErrRuntimeNotFound, err)
		}
		berr := &BootstrapError{Stage: StageLocate, Err: err}
		b.observe(StageLocate, start, berr)
		log.Error("Unable to locate Core HostFXR", zap.Error(err))
		return nil, berr
	}
	b.observe(StageLocate, start, nil)

	// 2. open
	start = time.Now()
	library, err := open(hostfxrPath)
	if err != nil {
		berr := &BootstrapError{Stage: StageOpen, Path: hostfxrPath, Err: err}
		b.observe(StageOpen, start, berr)
		log.Error("Unable to load Core HostFXR", zap.String("path", hostfxrPath), zap.Error(err))
		return nil, berr
	}
	b.observe(StageOpen, start, nil)

	// 3. exports
	start = time.Now()
	exports, err := resolveExports(library)
	if err != nil {
		berr := &BootstrapError{Stage: StageExports, Path: hostfxrPath, Err: fmt.Errorf("%w: %w", ErrHostingAPIIncompatible, err)}
		b.observe(StageExports, start, berr)
		log.Error("Unable to get Core HostFXR exports", zap.String("path", hostfxrPath), zap.Error(err))
		b.closeLibrary(log, library)
		return nil, berr
	}
	b.observe(StageExports, start, nil)
	log.Info("Loaded Core HostFXR", zap.String("path", hostfxrPath))

	hostfxr := binder.BindHostfxr(exports)

	// 4. initialize
	start = time.Now()
	// Success_HostAlreadyInitialized and the other positive codes are accepted.
	ctx, status := hostfxr.InitializeForRuntimeConfig(opts.RuntimeConfigPath, opts.Parameters)
	closeContext := b.contextCloser(log, hostfxr, ctx)
	if status.Failed() || ctx == 0 {
		berr := &BootstrapError{Stage: StageInitialize, Path: opts.RuntimeConfigPath, Status: status, Err: ErrRuntimeInitializationFailed}
		b.observe(StageInitialize, start, berr)
		log.Error("Unable to initialize handle",
			zap.String("runtime_config", opts.RuntimeConfigPath),
			zap.Stringer("status", status))
		closeContext()
		b.closeLibrary(log, library)
		return nil, berr
	}
	b.observe(StageInitialize, start, nil)

	// 5. delegate, 6. close
	start = time.Now()
	loaderFn, status := hostfxr.GetRuntimeDelegate(ctx, DelegateLoadAssemblyAndGetFunctionPointer)
	var delegateErr error
	if status.Failed() || loaderFn == 0 {
		delegateErr = &BootstrapError{Stage: StageDelegate, Status: status, Err: ErrDelegateResolutionFailed}
	}
	b.observe(StageDelegate, start, delegateErr)
	closeContext()
	if delegateErr != nil {
		log.Error("Unable to get runtime delegate", zap.Stringer("status", status))
		b.closeLibrary(log, library)
		return nil, delegateErr
	}
	log.Info("Initialized Core HostFXR")

	// 7. entry point
	start = time.Now()
	entryFn, status := binder.BindAssemblyLoader(loaderFn).LoadAssemblyAndGetFunctionPointer(opts.EntryPoint)
	if status.Failed() || entryFn == 0 {
		berr := &BootstrapError{Stage: StageEntryPoint, Path: opts.EntryPoint.AssemblyPath, Status: status, Err: ErrEntryPointNotFound}
		b.observe(StageEntryPoint, start, berr)
		log.Error("Unable to load loader assembly and get loader entry function pointer",
			zap.String("assembly", opts.EntryPoint.AssemblyPath),
			zap.String("type", opts.EntryPoint.TypeName),
			zap.String("method", opts.EntryPoint.MethodName),
			zap.Stringer("status", status))
		return nil, berr
	}
	b.observe(StageEntryPoint, start, nil)

	// 8. invoke
	start = time.Now()
	table := binder.InvokeEntryPoint(entryFn)
	b.observe(StageInvoke, start, nil)
	log.Info("Loaded Core HostFXR Loader",
		zap.String("assembly", opts.EntryPoint.AssemblyPath),
		zap.Stringer("callbacks", table))

	return &Runtime{
		HostfxrPath: hostfxrPath,
		Library:     library,
		Callbacks:   table,
	}, nil
}

func (b *Bootstrapper) observe(stage Stage, start time.Time, err error) {
	if b.Observer != nil {
		b.Observer(stage, time.Since(start), err)
	}
}

// contextCloser returns a func closing ctx at most once. A zero context is
// never passed to hostfxr_close.
func (b *Bootstrapper) contextCloser(log *zap.Logger, hostfxr Hostfxr, ctx Context) func() {
	closed := false
	return func() {
		if closed || ctx == 0 {
			return
		}
		closed = true

		start := time.Now()
		status := hostfxr.Close(ctx)
		var err error
		if status.Failed() {
			err = fmt.Errorf("hostfxr_close returned %s", status)
			log.Warn("Unable to close runtime context", zap.Stringer("status", status))
		}
		b.observe(StageClose, start, err)
	}
}

func (b *Bootstrapper) closeLibrary(log *zap.Logger, library Library) {
	if err := library.Close(); err != nil {
		log.Warn("Unable to unload Core HostFXR", zap.String("path", library.Path()), zap.Error(err))
	}
}

func resolveExports(library Library) (HostfxrExports, error) {
	var exports HostfxrExports
	targets := []struct {
		name string
		addr *uintptr
	}{
		{ExportInitializeForRuntimeConfig, &exports.InitializeForRuntimeConfig},
		{ExportGetRuntimeDelegate, &exports.GetRuntimeDelegate},
		{ExportClose, &exports.Close},
	}

	var errs []error
	for _, target := range targets {
		addr, err := library.Lookup(target.name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*target.addr = addr
	}
	if len(errs) > 0 {
		return HostfxrExports{}, errors.Join(errs...)
	}
	return exports, nil
}
