package clr

import (
	"fmt"
	"time"

	"github.com/corrreia/modcoreclr/internal/dynlib"
)

type fakeLibrary struct {
	path    string
	symbols map[string]uintptr
	lookups []string
	closed  int
}

func newFakeHostfxrLibrary(path string) *fakeLibrary {
	return &fakeLibrary{
		path: path,
		symbols: map[string]uintptr{
			ExportInitializeForRuntimeConfig: 0x1000,
			ExportGetRuntimeDelegate:         0x2000,
			ExportClose:                      0x3000,
		},
	}
}

func (l *fakeLibrary) Path() string { return l.path }

func (l *fakeLibrary) Lookup(name string) (uintptr, error) {
	l.lookups = append(l.lookups, name)
	if addr, ok := l.symbols[name]; ok {
		return addr, nil
	}
	return 0, fmt.Errorf("%w: %s", dynlib.ErrSymbolNotFound, name)
}

func (l *fakeLibrary) Close() error {
	l.closed++
	return nil
}

type fakeHostfxr struct {
	calls []string

	initCtx    Context
	initStatus StatusCode
	initPath   string
	initParams InitializeParameters

	delegate       uintptr
	delegateStatus StatusCode
	delegateKind   DelegateType

	closed []Context
}

func (h *fakeHostfxr) InitializeForRuntimeConfig(path string, params InitializeParameters) (Context, StatusCode) {
	h.calls = append(h.calls, "initialize")
	h.initPath = path
	h.initParams = params
	return h.initCtx, h.initStatus
}

func (h *fakeHostfxr) GetRuntimeDelegate(ctx Context, kind DelegateType) (uintptr, StatusCode) {
	h.calls = append(h.calls, "delegate")
	h.delegateKind = kind
	return h.delegate, h.delegateStatus
}

func (h *fakeHostfxr) Close(ctx Context) StatusCode {
	h.calls = append(h.calls, "close")
	h.closed = append(h.closed, ctx)
	return StatusSuccess
}

type fakeLoader struct {
	fn     uintptr
	status StatusCode
	entry  *EntryPoint
	calls  int
}

func (l *fakeLoader) LoadAssemblyAndGetFunctionPointer(entry EntryPoint) (uintptr, StatusCode) {
	l.calls++
	l.entry = &entry
	return l.fn, l.status
}

type fakeBinder struct {
	hostfxr  *fakeHostfxr
	loader   *fakeLoader
	table    CallbackTable
	exports  HostfxrExports
	loaderFn uintptr
	entryFn  uintptr
	invoked  int
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{
		hostfxr: &fakeHostfxr{initCtx: 0xc0, delegate: 0xd0},
		loader:  &fakeLoader{fn: 0xe0},
		table:   CallbackTable{Command: 0xa1, Application: 0xa2, Config: 0xa3},
	}
}

func (b *fakeBinder) BindHostfxr(exports HostfxrExports) Hostfxr {
	b.exports = exports
	return b.hostfxr
}

func (b *fakeBinder) BindAssemblyLoader(fn uintptr) AssemblyLoader {
	b.loaderFn = fn
	return b.loader
}

func (b *fakeBinder) InvokeEntryPoint(fn uintptr) CallbackTable {
	b.entryFn = fn
	b.invoked++
	return b.table
}

type stageRecord struct {
	stage Stage
	err   error
}

type stageRecorder struct {
	stages []stageRecord
}

func (r *stageRecorder) observe(stage Stage, _ time.Duration, err error) {
	r.stages = append(r.stages, stageRecord{stage: stage, err: err})
}

func (r *stageRecorder) names() []Stage {
	names := make([]Stage, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.stage
	}
	return names
}
