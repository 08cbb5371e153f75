package clr

/*
#include "hostfxr_abi.h"

static int32_t modcoreclr_initialize(uintptr_t fn, const modcoreclr_char_t *path,
	const modcoreclr_char_t *host_path, const modcoreclr_char_t *dotnet_root, uintptr_t *handle) {
	modcoreclr_initialize_parameters_t params;
	const modcoreclr_initialize_parameters_t *p = NULL;
	void *h = NULL;
	int32_t rc;

	if (host_path != NULL || dotnet_root != NULL) {
		params.size = sizeof(params);
		params.host_path = host_path;
		params.dotnet_root = dotnet_root;
		p = &params;
	}
	rc = ((modcoreclr_initialize_fn)fn)(path, p, &h);
	*handle = (uintptr_t)h;
	return rc;
}

static int32_t modcoreclr_get_delegate(uintptr_t fn, uintptr_t handle, int type, uintptr_t *delegate) {
	void *d = NULL;
	int32_t rc = ((modcoreclr_get_delegate_fn)fn)((void *)handle, type, &d);
	*delegate = (uintptr_t)d;
	return rc;
}

static int32_t modcoreclr_close(uintptr_t fn, uintptr_t handle) {
	return ((modcoreclr_close_fn)fn)((void *)handle);
}

static int32_t modcoreclr_load_assembly(uintptr_t fn, const modcoreclr_char_t *assembly_path,
	const modcoreclr_char_t *type_name, const modcoreclr_char_t *method_name,
	const modcoreclr_char_t *delegate_type_name, uintptr_t *delegate) {
	void *d = NULL;
	int rc = ((modcoreclr_load_assembly_fn)fn)(assembly_path, type_name, method_name, delegate_type_name, NULL, &d);
	*delegate = (uintptr_t)d;
	return (int32_t)rc;
}

static modcoreclr_callbacks_t modcoreclr_invoke_entry(uintptr_t fn) {
	return ((modcoreclr_entry_fn)fn)();
}

static int32_t modcoreclr_get_hostfxr_path(uintptr_t fn, modcoreclr_char_t *buffer, size_t *size,
	const modcoreclr_char_t *assembly_path, const modcoreclr_char_t *dotnet_root) {
	modcoreclr_get_hostfxr_parameters_t params;
	const modcoreclr_get_hostfxr_parameters_t *p = NULL;

	if (assembly_path != NULL || dotnet_root != NULL) {
		params.size = sizeof(params);
		params.assembly_path = assembly_path;
		params.dotnet_root = dotnet_root;
		p = &params;
	}
	return (int32_t)((modcoreclr_get_hostfxr_path_fn)fn)(buffer, size, p);
}

static const char *modcoreclr_call_xml(uintptr_t fn, const char *section, const char *tag_name,
	const char *key_name, const char *key_value, void *params) {
	return ((modcoreclr_xml_fn)fn)(section, tag_name, key_name, key_value, params);
}
*/
import "C"

import "unsafe"

// NativeBinder calls resolved addresses through C trampolines using the
// hostfxr calling conventions.
func NativeBinder() Binder {
	return nativeBinder{}
}

type nativeBinder struct{}

func (nativeBinder) BindHostfxr(exports HostfxrExports) Hostfxr {
	return nativeHostfxr{exports: exports}
}

func (nativeBinder) BindAssemblyLoader(fn uintptr) AssemblyLoader {
	return nativeAssemblyLoader(fn)
}

func (nativeBinder) InvokeEntryPoint(fn uintptr) CallbackTable {
	cb := C.modcoreclr_invoke_entry(C.uintptr_t(fn))
	return CallbackTable{
		Command:     uintptr(cb.api_callback),
		Application: uintptr(cb.app_callback),
		Config:      uintptr(cb.xml_callback),
	}
}

type nativeHostfxr struct {
	exports HostfxrExports
}

func (h nativeHostfxr) InitializeForRuntimeConfig(runtimeConfigPath string, params InitializeParameters) (Context, StatusCode) {
	path, freePath := toCharT(runtimeConfigPath)
	defer freePath()
	hostPath, freeHostPath := toOptionalCharT(params.HostPath)
	defer freeHostPath()
	dotnetRoot, freeDotnetRoot := toOptionalCharT(params.DotnetRoot)
	defer freeDotnetRoot()

	var handle C.uintptr_t
	rc := C.modcoreclr_initialize(C.uintptr_t(h.exports.InitializeForRuntimeConfig), path, hostPath, dotnetRoot, &handle)
	return Context(handle), StatusCode(uint32(rc))
}

func (h nativeHostfxr) GetRuntimeDelegate(ctx Context, kind DelegateType) (uintptr, StatusCode) {
	var delegate C.uintptr_t
	rc := C.modcoreclr_get_delegate(C.uintptr_t(h.exports.GetRuntimeDelegate), C.uintptr_t(ctx), C.int(kind), &delegate)
	return uintptr(delegate), StatusCode(uint32(rc))
}

func (h nativeHostfxr) Close(ctx Context) StatusCode {
	return StatusCode(uint32(C.modcoreclr_close(C.uintptr_t(h.exports.Close), C.uintptr_t(ctx))))
}

type nativeAssemblyLoader uintptr

func (fn nativeAssemblyLoader) LoadAssemblyAndGetFunctionPointer(entry EntryPoint) (uintptr, StatusCode) {
	assemblyPath, freeAssemblyPath := toCharT(entry.AssemblyPath)
	defer freeAssemblyPath()
	typeName, freeTypeName := toCharT(entry.TypeName)
	defer freeTypeName()
	methodName, freeMethodName := toCharT(entry.MethodName)
	defer freeMethodName()
	delegateTypeName, freeDelegateTypeName := toOptionalCharT(entry.DelegateTypeName)
	defer freeDelegateTypeName()

	var delegate C.uintptr_t
	rc := C.modcoreclr_load_assembly(C.uintptr_t(fn), assemblyPath, typeName, methodName, delegateTypeName, &delegate)
	return uintptr(delegate), StatusCode(uint32(rc))
}

// getHostfxrPath calls nethost's get_hostfxr_path with a buffer of the
// platform's maximum path length. On HostApiBufferTooSmall the returned size
// is the length nethost asked for.
func getHostfxrPath(fn uintptr, assemblyPathHint, dotnetRoot string) (string, int, StatusCode) {
	assemblyPath, freeAssemblyPath := toOptionalCharT(assemblyPathHint)
	defer freeAssemblyPath()
	root, freeRoot := toOptionalCharT(dotnetRoot)
	defer freeRoot()

	var buffer [C.MODCORECLR_MAX_PATH]C.modcoreclr_char_t
	size := C.size_t(len(buffer))
	rc := StatusCode(uint32(C.modcoreclr_get_hostfxr_path(C.uintptr_t(fn), &buffer[0], &size, assemblyPath, root)))
	if rc.Failed() {
		return "", int(size), rc
	}
	return fromCharT(&buffer[0]), int(size), rc
}

// maxPath is the platform maximum path length the locator buffers are sized to.
const maxPath = int(C.MODCORECLR_MAX_PATH)

func callConfig(fn uintptr, q ConfigQuery) unsafe.Pointer {
	return unsafe.Pointer(C.modcoreclr_call_xml(C.uintptr_t(fn),
		(*C.char)(q.Section), (*C.char)(q.Tag), (*C.char)(q.Key), (*C.char)(q.Value), q.Event))
}

func cString(s string) unsafe.Pointer {
	return unsafe.Pointer(C.CString(s))
}

func cFree(p unsafe.Pointer) {
	C.free(p)
}

func goString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	return C.GoString((*C.char)(p))
}
