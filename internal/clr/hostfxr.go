// Package clr hosts the .NET runtime through hostfxr: it locates and opens
// the hosting library, initializes a runtime context from a runtimeconfig
// document, resolves the managed loader entry point and invokes it once to
// obtain the callback table handed to the host.
package clr

// Export names required from the hosting library.
const (
	ExportInitializeForRuntimeConfig = "hostfxr_initialize_for_runtime_config"
	ExportGetRuntimeDelegate         = "hostfxr_get_runtime_delegate"
	ExportClose                      = "hostfxr_close"
	ExportGetHostfxrPath             = "get_hostfxr_path"
)

// DelegateType mirrors enum hostfxr_delegate_type.
type DelegateType int32

const (
	DelegateCOMActivation DelegateType = iota
	DelegateLoadInMemoryAssembly
	DelegateWinRTActivation
	DelegateCOMRegister
	DelegateCOMUnregister
	DelegateLoadAssemblyAndGetFunctionPointer
	DelegateGetFunctionPointer
	DelegateLoadAssembly
	DelegateLoadAssemblyBytes
)

// Context is an opaque hostfxr_handle.
type Context uintptr

// InitializeParameters are the optional hostfxr_initialize_parameters.
// A zero value means no parameters are passed.
type InitializeParameters struct {
	HostPath   string
	DotnetRoot string
}

// HostfxrExports holds the resolved addresses of the hostfxr functions the
// bootstrap uses.
type HostfxrExports struct {
	InitializeForRuntimeConfig uintptr
	GetRuntimeDelegate         uintptr
	Close                      uintptr
}

// Hostfxr is the callable surface of a resolved hosting library.
type Hostfxr interface {
	InitializeForRuntimeConfig(runtimeConfigPath string, params InitializeParameters) (Context, StatusCode)
	GetRuntimeDelegate(ctx Context, kind DelegateType) (uintptr, StatusCode)
	Close(ctx Context) StatusCode
}

// AssemblyLoader is the load_assembly_and_get_function_pointer delegate.
type AssemblyLoader interface {
	LoadAssemblyAndGetFunctionPointer(entry EntryPoint) (uintptr, StatusCode)
}

// Binder turns raw function addresses into callable Go values.
type Binder interface {
	BindHostfxr(exports HostfxrExports) Hostfxr
	BindAssemblyLoader(fn uintptr) AssemblyLoader
	InvokeEntryPoint(fn uintptr) CallbackTable
}

// EntryPoint identifies the managed loader method.
type EntryPoint struct {
	AssemblyPath     string
	TypeName         string
	MethodName       string
	DelegateTypeName string
}
