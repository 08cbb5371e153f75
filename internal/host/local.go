package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/xmlbridge"
)

var (
	// ErrDuplicateName means a command or application name is taken.
	ErrDuplicateName = errors.New("host: name already registered")
	// ErrNotBound means no config search is bound for the section.
	ErrNotBound = errors.New("host: no config search bound for section")
)

// SearchRequest is one configuration lookup on the local host.
type SearchRequest struct {
	Section string
	Tag     string
	Key     string
	Value   string
}

type binding struct {
	sections Section
	bridge   *xmlbridge.Bridge[clr.ConfigQuery, *etree.Document]
}

// LocalHost is an in-process Registrar. It records registrations and
// answers config searches with etree documents.
type LocalHost struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	commands map[string]Command
	apps     map[string]Application
	bindings []binding

	lookup func(fn uintptr, q clr.ConfigQuery) (xmlbridge.Buffer, bool)
}

// NewLocalHost returns an empty LocalHost.
func NewLocalHost(logger *zap.Logger) *LocalHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalHost{
		logger:   logger,
		commands: make(map[string]Command),
		apps:     make(map[string]Application),
		lookup:   managedLookup,
	}
}

func managedLookup(fn uintptr, q clr.ConfigQuery) (xmlbridge.Buffer, bool) {
	return ManagedLookup(fn)(q)
}

// ManagedLookup adapts the managed config callback at fn to a bridge
// lookup. The buffers it yields are NUL-terminated.
func ManagedLookup(fn uintptr) xmlbridge.LookupFunc[clr.ConfigQuery] {
	cb := clr.ConfigCallback(fn)
	return func(q clr.ConfigQuery) (xmlbridge.Buffer, bool) {
		s := cb.Lookup(q)
		if s == nil {
			return nil, false
		}
		return s, true
	}
}

func (h *LocalHost) RegisterCommand(cmd Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.commands[cmd.Name]; ok {
		return fmt.Errorf("%w: command %s", ErrDuplicateName, cmd.Name)
	}
	h.commands[cmd.Name] = cmd
	h.logger.Debug("Registered command", zap.String("name", cmd.Name))
	return nil
}

func (h *LocalHost) RegisterApplication(app Application) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.apps[app.Name]; ok {
		return fmt.Errorf("%w: application %s", ErrDuplicateName, app.Name)
	}
	h.apps[app.Name] = app
	h.logger.Debug("Registered application", zap.String("name", app.Name))
	return nil
}

func (h *LocalHost) BindConfigSearch(sections Section, fn uintptr) error {
	if fn == 0 {
		return errors.New("host: nil config search function")
	}
	lookup := h.lookup
	b := xmlbridge.New(func(q clr.ConfigQuery) (xmlbridge.Buffer, bool) {
		return lookup(fn, q)
	}, xmlbridge.EtreeParser{}, h.logger.Named("xml"))

	h.mu.Lock()
	h.bindings = append(h.bindings, binding{sections: sections, bridge: b})
	h.mu.Unlock()
	h.logger.Debug("Bound config search", zap.Stringer("sections", sections))
	return nil
}

// Command returns a registered command.
func (h *LocalHost) Command(name string) (Command, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.commands[name]
	return c, ok
}

// Application returns a registered application.
func (h *LocalHost) Application(name string) (Application, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.apps[name]
	return a, ok
}

// Bound returns the union of all bound section masks.
func (h *LocalHost) Bound() Section {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var s Section
	for _, b := range h.bindings {
		s |= b.sections
	}
	return s
}

// Search runs req against the bindings covering its section, in bind
// order, and returns the first document. It returns
// xmlbridge.ErrNoDocument when every binding declines and ErrNotBound when
// none covers the section.
func (h *LocalHost) Search(req SearchRequest) (*etree.Document, error) {
	section, err := ParseSection(req.Section)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	bindings := append([]binding(nil), h.bindings...)
	h.mu.RUnlock()

	q, free := clr.NewConfigQuery(req.Section, req.Tag, req.Key, req.Value, nil)
	defer free()

	covered := false
	var lastErr error
	for _, b := range bindings {
		if !b.sections.Has(section) {
			continue
		}
		covered = true
		doc, err := b.bridge.Query(q)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	if !covered {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, req.Section)
	}
	return nil, lastErr
}

// Stats sums the bridge counters of all bindings.
func (h *LocalHost) Stats() xmlbridge.Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var total xmlbridge.Stats
	for _, b := range h.bindings {
		s := b.bridge.Stats()
		total.Queries += s.Queries
		total.Documents += s.Documents
		total.Misses += s.Misses
		total.ParseFailures += s.ParseFailures
	}
	return total
}
