package bridge

import (
	"errors"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/xmlbridge"
)

// configBridge turns managed documents into host document handles.
type configBridge = xmlbridge.Bridge[clr.ConfigQuery, unsafe.Pointer]

var errUnknownSearch = errors.New("bridge: unknown search binding")

// searchTable owns the handles given to the host as xml search user data.
type searchTable struct {
	mu      sync.Mutex
	handles map[uintptr]cgo.Handle
}

func (t *searchTable) add(b *configBridge) uintptr {
	h := cgo.NewHandle(b)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handles == nil {
		t.handles = make(map[uintptr]cgo.Handle)
	}
	t.handles[uintptr(h)] = h
	return uintptr(h)
}

func (t *searchTable) lookup(id uintptr) (*configBridge, error) {
	t.mu.Lock()
	h, ok := t.handles[id]
	t.mu.Unlock()
	if !ok {
		return nil, errUnknownSearch
	}
	b, ok := h.Value().(*configBridge)
	if !ok {
		return nil, errUnknownSearch
	}
	return b, nil
}

func (t *searchTable) remove(id uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[id]; ok {
		h.Delete()
		delete(t.handles, id)
	}
}

// releaseAll deletes every handle. The host must have unbound the searches.
func (t *searchTable) releaseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.handles)
	for id, h := range t.handles {
		h.Delete()
		delete(t.handles, id)
	}
	return n
}

func (t *searchTable) stats() xmlbridge.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total xmlbridge.Stats
	for _, h := range t.handles {
		b, ok := h.Value().(*configBridge)
		if !ok {
			continue
		}
		s := b.Stats()
		total.Queries += s.Queries
		total.Documents += s.Documents
		total.Misses += s.Misses
		total.ParseFailures += s.ParseFailures
	}
	return total
}
