package bridge

/*
#cgo CFLAGS: -I../../native/include
#define MODCORECLR_GO_BUILD
#include "modcoreclr_abi.h"
#include <stdlib.h>
*/
import "C"

import (
	"os"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/journal"
	"github.com/corrreia/modcoreclr/internal/logging"
	"github.com/corrreia/modcoreclr/internal/module"
	"github.com/corrreia/modcoreclr/internal/recovery"
)

// ============================================================
// Global State
// ============================================================

var (
	router = logging.NewRouter(nil)
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger = logging.New(router, level)

	stateMu  sync.Mutex
	mod      *module.Module
	searches searchTable
)

// ============================================================
// Exported Functions (called by the shim)
// ============================================================

//export ModCoreCLR_GetABIVersion
func ModCoreCLR_GetABIVersion() C.int32_t {
	return C.int32_t(ABIVersion)
}

//export ModCoreCLR_RegisterHost
func ModCoreCLR_RegisterHost(h *C.modcoreclr_host_t) {
	recovery.SafeCall(logger, "register host", func() {
		setHost(h)
		if h != nil {
			logger.Debug("Host callbacks registered")
		}
	})
}

//export ModCoreCLR_Load
func ModCoreCLR_Load() C.int32_t {
	stateMu.Lock()
	defer stateMu.Unlock()

	status := safeCall(logger, "load", func() Status {
		if mod != nil {
			// Load already ran; report its outcome again.
			if err := mod.Load(); err != nil {
				return failLoad(logger, "Module load already failed", err)
			}
			return StatusOK
		}
		return load()
	})
	return C.int32_t(status)
}

func load() Status {
	if currentHost() == nil {
		return failLoad(logger, "Unable to load module", errNoHost)
	}

	cfg, path, err := config.Load(hostDirs(), os.Getenv)
	if err != nil {
		return failLoad(logger, "Unable to load configuration", err)
	}
	if lvl, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		level.SetLevel(lvl)
	}
	if path != "" {
		logger.Info("Loaded configuration", zap.String("path", path))
	} else {
		logger.Info("No configuration file found, using defaults")
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.Journal.Path, logger.Named("journal"))
		if err != nil {
			logger.Warn("Unable to open bootstrap journal", zap.String("path", cfg.Journal.Path), zap.Error(err))
			j = nil
		}
	}

	mod = module.New(module.Options{
		Config:    cfg,
		Registrar: hostRegistrar{logger: logger},
		Journal:   j,
		Logger:    logger,
	})
	if err := mod.Load(); err != nil {
		return failLoad(logger, "Unable to load module", err)
	}
	clearLastError()
	return StatusOK
}

//export ModCoreCLR_Shutdown
func ModCoreCLR_Shutdown() {
	stateMu.Lock()
	defer stateMu.Unlock()

	_ = safeCall(logger, "shutdown", func() Status {
		if mod != nil {
			if err := mod.Shutdown(); err != nil {
				logger.Warn("Shutdown incomplete", zap.Error(err))
			}
		}
		stats := searches.stats()
		n := searches.releaseAll()
		logger.Info("Released xml search bindings",
			zap.Int("bindings", n),
			zap.Uint64("queries", stats.Queries),
			zap.Uint64("documents", stats.Documents),
			zap.Uint64("parse_failures", stats.ParseFailures))
		return StatusOK
	})
	_ = logger.Sync()
}

//export ModCoreCLR_XMLSearch
func ModCoreCLR_XMLSearch(userData C.uintptr_t, section, tagName, keyName, keyValue *C.char, params unsafe.Pointer) unsafe.Pointer {
	var doc unsafe.Pointer
	safeCall(logger, "xml search", func() Status {
		b, err := searches.lookup(uintptr(userData))
		if err != nil {
			logger.Warn("Xml search with unknown binding", zap.Uintptr("user_data", uintptr(userData)))
			return StatusInvalid
		}
		q := clr.ConfigQuery{
			Section: unsafe.Pointer(section),
			Tag:     unsafe.Pointer(tagName),
			Key:     unsafe.Pointer(keyName),
			Value:   unsafe.Pointer(keyValue),
			Event:   params,
		}
		if d, ok := b.Handle(q); ok {
			doc = d
		}
		return StatusOK
	})
	return doc
}

//export ModCoreCLR_GetLastError
func ModCoreCLR_GetLastError() *C.char {
	msg := getLastError()
	if msg == "" {
		return nil
	}
	// Caller must free this memory
	return C.CString(msg)
}

//export ModCoreCLR_ClearLastError
func ModCoreCLR_ClearLastError() {
	clearLastError()
}
