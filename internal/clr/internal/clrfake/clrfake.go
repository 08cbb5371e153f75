//go:build !windows

// Package clrfake is an in-process stand-in for the hostfxr and nethost
// libraries. Its exports are real C functions, so callers go through the
// same trampolines they use against an installed runtime.
//
// State is process global; Reset between tests.
package clrfake

/*
#cgo CFLAGS: -I${SRCDIR}/../..
#include <stdlib.h>
#include <string.h>
#include <stdio.h>
#include "hostfxr_abi.h"

#define CLRFAKE_LIB_MISSING ((int32_t)0x80008083)
#define CLRFAKE_BUFFER_TOO_SMALL ((int32_t)0x80008098)

typedef struct clrfake_state {
	int32_t initialize_status;
	int32_t delegate_status;
	int32_t load_status;
	int null_context;
	int null_delegate;
	int null_entry;

	int initialize_calls;
	int delegate_calls;
	int close_calls;
	int load_calls;
	int entry_calls;
	int config_calls;

	int has_parameters;
	int delegate_type;
	int context_closed;

	char *runtime_config;
	char *dotnet_root;
	char *assembly;
	char *type_name;
	char *method_name;
	char *delegate_type_name;
	char *section;
	char *hostfxr_path;
	char *nethost_assembly;
	char *nethost_root;
} clrfake_state_t;

static clrfake_state_t clrfake;
static int clrfake_context_token;

static void clrfake_set(char **dst, const char *src) {
	free(*dst);
	*dst = src != NULL ? strdup(src) : NULL;
}

static void clrfake_reset(void) {
	char **owned[] = {
		&clrfake.runtime_config, &clrfake.dotnet_root, &clrfake.assembly, &clrfake.type_name,
		&clrfake.method_name, &clrfake.delegate_type_name, &clrfake.section, &clrfake.hostfxr_path,
		&clrfake.nethost_assembly, &clrfake.nethost_root,
	};
	size_t i;
	for (i = 0; i < sizeof(owned) / sizeof(owned[0]); i++) {
		free(*owned[i]);
	}
	memset(&clrfake, 0, sizeof(clrfake));
}

static const char *clrfake_config(const char *section, const char *tag_name,
	const char *key_name, const char *key_value, void *params) {
	static const char format[] = "<document type=\"freeswitch/xml\"><section name=\"%s\"/></document>";
	size_t n;
	char *doc;

	clrfake.config_calls++;
	clrfake_set(&clrfake.section, section);
	if (section == NULL || strcmp(section, "configuration") != 0) {
		return NULL;
	}
	n = sizeof(format) + strlen(section);
	doc = malloc(n);
	if (doc != NULL) {
		snprintf(doc, n, format, section);
	}
	return doc;
}

static modcoreclr_callbacks_t clrfake_entry(void) {
	modcoreclr_callbacks_t cb;
	clrfake.entry_calls++;
	cb.api_callback = NULL;
	cb.app_callback = NULL;
	cb.xml_callback = (void *)&clrfake_config;
	return cb;
}

static int clrfake_load_assembly(const modcoreclr_char_t *assembly_path, const modcoreclr_char_t *type_name,
	const modcoreclr_char_t *method_name, const modcoreclr_char_t *delegate_type_name,
	void *reserved, void **delegate) {
	clrfake.load_calls++;
	clrfake_set(&clrfake.assembly, assembly_path);
	clrfake_set(&clrfake.type_name, type_name);
	clrfake_set(&clrfake.method_name, method_name);
	clrfake_set(&clrfake.delegate_type_name, delegate_type_name);
	*delegate = clrfake.null_entry ? NULL : (void *)&clrfake_entry;
	return clrfake.load_status;
}

static int32_t clrfake_initialize(const modcoreclr_char_t *path,
	const modcoreclr_initialize_parameters_t *params, void **handle) {
	clrfake.initialize_calls++;
	clrfake_set(&clrfake.runtime_config, path);
	clrfake.has_parameters = params != NULL;
	clrfake_set(&clrfake.dotnet_root, params != NULL ? params->dotnet_root : NULL);
	*handle = clrfake.null_context ? NULL : (void *)&clrfake_context_token;
	return clrfake.initialize_status;
}

static int32_t clrfake_get_delegate(void *handle, int type, void **delegate) {
	clrfake.delegate_calls++;
	clrfake.delegate_type = type;
	if (handle != &clrfake_context_token || clrfake.null_delegate) {
		*delegate = NULL;
	} else {
		*delegate = (void *)&clrfake_load_assembly;
	}
	return clrfake.delegate_status;
}

static int32_t clrfake_close(void *handle) {
	clrfake.close_calls++;
	clrfake.context_closed = handle == &clrfake_context_token;
	return 0;
}

static int clrfake_get_hostfxr_path(modcoreclr_char_t *buffer, size_t *size,
	const modcoreclr_get_hostfxr_parameters_t *params) {
	size_t needed;

	clrfake_set(&clrfake.nethost_assembly, params != NULL ? params->assembly_path : NULL);
	clrfake_set(&clrfake.nethost_root, params != NULL ? params->dotnet_root : NULL);
	if (clrfake.hostfxr_path == NULL) {
		return CLRFAKE_LIB_MISSING;
	}
	needed = strlen(clrfake.hostfxr_path) + 1;
	if (needed > *size) {
		*size = needed;
		return CLRFAKE_BUFFER_TOO_SMALL;
	}
	memcpy(buffer, clrfake.hostfxr_path, needed);
	*size = needed;
	return 0;
}

static uintptr_t clrfake_symbol(const char *name) {
	if (strcmp(name, "hostfxr_initialize_for_runtime_config") == 0) {
		return (uintptr_t)&clrfake_initialize;
	}
	if (strcmp(name, "hostfxr_get_runtime_delegate") == 0) {
		return (uintptr_t)&clrfake_get_delegate;
	}
	if (strcmp(name, "hostfxr_close") == 0) {
		return (uintptr_t)&clrfake_close;
	}
	if (strcmp(name, "get_hostfxr_path") == 0) {
		return (uintptr_t)&clrfake_get_hostfxr_path;
	}
	return 0;
}

static clrfake_state_t *clrfake_state(void) {
	return &clrfake;
}

static void clrfake_set_hostfxr_path(const char *path) {
	clrfake_set(&clrfake.hostfxr_path, path);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/corrreia/modcoreclr/internal/dynlib"
)

// Library is an opened fake hosting library.
type Library struct {
	path   string
	closed int
}

// Open returns a fake library reporting path as its location.
func Open(path string) *Library {
	return &Library{path: path}
}

func (l *Library) Path() string { return l.path }

// Lookup resolves the hostfxr and nethost exports of the fake.
func (l *Library) Lookup(name string) (uintptr, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	addr := uintptr(C.clrfake_symbol(cs))
	if addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s", dynlib.ErrSymbolNotFound, name, l.path)
	}
	return addr, nil
}

func (l *Library) Close() error {
	l.closed++
	return nil
}

// Closed returns how many times Close was called.
func (l *Library) Closed() int { return l.closed }

// Calls counts the invocations of each fake function.
type Calls struct {
	Initialize int
	Delegate   int
	Close      int
	Load       int
	Entry      int
	Config     int
}

// Reset clears recorded arguments, counters and configured results.
func Reset() {
	C.clrfake_reset()
}

// Counts returns the call counters.
func Counts() Calls {
	st := state()
	return Calls{
		Initialize: int(st.initialize_calls),
		Delegate:   int(st.delegate_calls),
		Close:      int(st.close_calls),
		Load:       int(st.load_calls),
		Entry:      int(st.entry_calls),
		Config:     int(st.config_calls),
	}
}

// SetInitializeStatus sets the status returned by hostfxr_initialize_for_runtime_config.
func SetInitializeStatus(status uint32) {
	state().initialize_status = C.int32_t(int32(status))
}

// SetDelegateStatus sets the status returned by hostfxr_get_runtime_delegate.
func SetDelegateStatus(status uint32) {
	state().delegate_status = C.int32_t(int32(status))
}

// SetLoadStatus sets the status returned by the assembly loader delegate.
func SetLoadStatus(status uint32) {
	state().load_status = C.int32_t(int32(status))
}

// SetNullContext makes initialization hand back a NULL context.
func SetNullContext(v bool) {
	state().null_context = cbool(v)
}

// SetNullEntry makes the loader delegate resolve a NULL entry point.
func SetNullEntry(v bool) {
	state().null_entry = cbool(v)
}

// SetHostfxrPath sets the path get_hostfxr_path reports. Empty makes it fail
// with CoreHostLibMissingFailure.
func SetHostfxrPath(path string) {
	if path == "" {
		C.clrfake_set_hostfxr_path(nil)
		return
	}
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	C.clrfake_set_hostfxr_path(cs)
}

// RuntimeConfig is the runtimeconfig path passed to initialize.
func RuntimeConfig() string { return goString(state().runtime_config) }

// HasParameters reports whether initialize received a parameters struct.
func HasParameters() bool { return state().has_parameters != 0 }

// DotnetRoot is the dotnet_root initialize parameter.
func DotnetRoot() string { return goString(state().dotnet_root) }

// DelegateType is the delegate kind requested from the runtime.
func DelegateType() int { return int(state().delegate_type) }

// ContextClosed reports whether hostfxr_close received the context that
// initialize handed out.
func ContextClosed() bool { return state().context_closed != 0 }

// EntryPoint is the arguments given to the assembly loader delegate.
type EntryPoint struct {
	AssemblyPath     string
	TypeName         string
	MethodName       string
	DelegateTypeName string
}

// LoadedEntryPoint returns the last arguments of the loader delegate.
func LoadedEntryPoint() EntryPoint {
	st := state()
	return EntryPoint{
		AssemblyPath:     goString(st.assembly),
		TypeName:         goString(st.type_name),
		MethodName:       goString(st.method_name),
		DelegateTypeName: goString(st.delegate_type_name),
	}
}

// Section is the section argument of the last config lookup.
func Section() string { return goString(state().section) }

// NethostParameters returns the assembly_path and dotnet_root passed to get_hostfxr_path.
func NethostParameters() (assemblyPath, dotnetRoot string) {
	return goString(state().nethost_assembly), goString(state().nethost_root)
}

func state() *C.clrfake_state_t {
	return C.clrfake_state()
}

func cbool(v bool) C.int {
	if v {
		return 1
	}
	return 0
}

func goString(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}
