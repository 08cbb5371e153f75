package bridge

/*
#cgo CFLAGS: -I../../native/include
#define MODCORECLR_GO_BUILD
#include "modcoreclr_abi.h"
#include <stdlib.h>

static inline void call_log(modcoreclr_host_t* h, int level, const char* tag, const char* msg) {
    if (h && h->log) {
        h->log(level, tag, msg);
    }
}

static inline int call_register_api(modcoreclr_host_t* h, const char* name, const char* desc, const char* syntax, uintptr_t fn) {
    if (h && h->register_api) {
        return h->register_api(name, desc, syntax, (void*)fn);
    }
    return -1;
}

static inline int call_register_app(modcoreclr_host_t* h, const char* name, const char* short_desc, const char* long_desc, const char* syntax, uint32_t flags, uintptr_t fn) {
    if (h && h->register_app) {
        return h->register_app(name, short_desc, long_desc, syntax, flags, (void*)fn);
    }
    return -1;
}

static inline int call_bind_xml_search(modcoreclr_host_t* h, uint32_t sections, uintptr_t user_data) {
    if (h && h->bind_xml_search) {
        return h->bind_xml_search(sections, user_data);
    }
    return -1;
}

static inline void* call_parse_xml(modcoreclr_host_t* h, const char* raw, int dup) {
    if (h && h->parse_xml) {
        return h->parse_xml(raw, dup);
    }
    return NULL;
}

static inline const char* call_conf_dir(modcoreclr_host_t* h) {
    if (h && h->conf_dir) {
        return h->conf_dir();
    }
    return NULL;
}

static inline const char* call_mod_dir(modcoreclr_host_t* h) {
    if (h && h->mod_dir) {
        return h->mod_dir();
    }
    return NULL;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/logging"
	"github.com/corrreia/modcoreclr/internal/xmlbridge"
)

var (
	hostMu    sync.RWMutex
	hostTable *C.modcoreclr_host_t

	errNoHost        = errors.New("bridge: host not registered")
	errEmptyDocument = errors.New("empty document")
	errHostRejected  = errors.New("host parser rejected document")
)

func currentHost() *C.modcoreclr_host_t {
	hostMu.RLock()
	defer hostMu.RUnlock()
	return hostTable
}

func setHost(h *C.modcoreclr_host_t) {
	hostMu.Lock()
	hostTable = h
	hostMu.Unlock()
	if h == nil {
		router.SetSink(nil)
		return
	}
	router.SetSink(hostSink{})
}

// ============================================================
// Logging
// ============================================================

type hostSink struct{}

func (hostSink) Log(sev logging.Severity, tag, message string) {
	h := currentHost()
	cTag := C.CString(tag)
	cMsg := C.CString(message)
	defer C.free(unsafe.Pointer(cTag))
	defer C.free(unsafe.Pointer(cMsg))
	C.call_log(h, C.int(sev), cTag, cMsg)
}

// hostDirs asks the host for its configuration and module directories.
func hostDirs() config.Dirs {
	h := currentHost()
	var dirs config.Dirs
	if p := C.call_conf_dir(h); p != nil {
		dirs.Conf = C.GoString(p)
	}
	if p := C.call_mod_dir(h); p != nil {
		dirs.Mod = C.GoString(p)
	}
	return dirs
}

// ============================================================
// Registration
// ============================================================

// hostRegistrar registers through the shim's callback table.
type hostRegistrar struct {
	logger *zap.Logger
}

func (r hostRegistrar) RegisterCommand(cmd host.Command) error {
	h := currentHost()
	if h == nil {
		return errNoHost
	}
	name, desc, usage := C.CString(cmd.Name), C.CString(cmd.Description), C.CString(cmd.Usage)
	defer C.free(unsafe.Pointer(name))
	defer C.free(unsafe.Pointer(desc))
	defer C.free(unsafe.Pointer(usage))

	if rc := C.call_register_api(h, name, desc, usage, C.uintptr_t(cmd.Fn)); rc != 0 {
		return fmt.Errorf("host returned %d", int(rc))
	}
	r.logger.Info("Registered api", zap.String("name", cmd.Name))
	return nil
}

func (r hostRegistrar) RegisterApplication(app host.Application) error {
	h := currentHost()
	if h == nil {
		return errNoHost
	}
	name, short, long, usage := C.CString(app.Name), C.CString(app.Short), C.CString(app.Long), C.CString(app.Usage)
	defer C.free(unsafe.Pointer(name))
	defer C.free(unsafe.Pointer(short))
	defer C.free(unsafe.Pointer(long))
	defer C.free(unsafe.Pointer(usage))

	if rc := C.call_register_app(h, name, short, long, usage, C.uint32_t(app.Flags), C.uintptr_t(app.Fn)); rc != 0 {
		return fmt.Errorf("host returned %d", int(rc))
	}
	r.logger.Info("Registered application", zap.String("name", app.Name))
	return nil
}

func (r hostRegistrar) BindConfigSearch(sections host.Section, fn uintptr) error {
	h := currentHost()
	if h == nil {
		return errNoHost
	}
	b := xmlbridge.New(host.ManagedLookup(fn), xmlbridge.ParserFunc[unsafe.Pointer](parseNative), r.logger.Named("xml"))
	id := searches.add(b)
	if rc := C.call_bind_xml_search(h, C.uint32_t(sections), C.uintptr_t(id)); rc != 0 {
		searches.remove(id)
		return fmt.Errorf("host returned %d", int(rc))
	}
	r.logger.Info("Bound xml search", zap.Stringer("sections", sections))
	return nil
}

// parseNative hands a managed document to the host parser, which copies
// it. raw must be followed by a NUL terminator, as managed buffers are.
func parseNative(raw []byte) (unsafe.Pointer, error) {
	if len(raw) == 0 {
		return nil, errEmptyDocument
	}
	h := currentHost()
	if h == nil {
		return nil, errNoHost
	}
	doc := C.call_parse_xml(h, (*C.char)(unsafe.Pointer(&raw[0])), 1)
	if doc == nil {
		return nil, errHostRejected
	}
	return doc, nil
}
