package clr

import (
	"fmt"
	"sync"
	"unsafe"
)

// CallbackTable is the set of managed callbacks returned by the loader
// entry point. Each member is independently optional; a zero address means
// the managed side did not provide that capability.
type CallbackTable struct {
	// Command has the host's api function signature (cmd, session, stream).
	Command uintptr
	// Application has the host's application function signature (session, data).
	Application uintptr
	// Config returns a serialized document or NULL for (section, tag, key, value, params).
	Config uintptr
}

// Empty reports whether no callback was provided.
func (t CallbackTable) Empty() bool {
	return t.Command == 0 && t.Application == 0 && t.Config == 0
}

// ConfigCallback returns the config member as a callable value.
func (t CallbackTable) ConfigCallback() ConfigCallback {
	return ConfigCallback(t.Config)
}

func (t CallbackTable) String() string {
	return fmt.Sprintf("command=%t application=%t config=%t", t.Command != 0, t.Application != 0, t.Config != 0)
}

// ConfigQuery carries the raw arguments of a configuration lookup. The
// string fields point at NUL-terminated C strings or are nil; they are
// forwarded to the managed callback unchanged.
type ConfigQuery struct {
	Section unsafe.Pointer
	Tag     unsafe.Pointer
	Key     unsafe.Pointer
	Value   unsafe.Pointer
	Event   unsafe.Pointer
}

// NewConfigQuery builds a query from Go strings. Empty strings become NULL.
// The returned func frees the C copies and must be called once the query is
// no longer used.
func NewConfigQuery(section, tag, key, value string, event unsafe.Pointer) (ConfigQuery, func()) {
	var allocated []unsafe.Pointer
	dup := func(s string) unsafe.Pointer {
		if s == "" {
			return nil
		}
		p := cString(s)
		allocated = append(allocated, p)
		return p
	}

	q := ConfigQuery{
		Section: dup(section),
		Tag:     dup(tag),
		Key:     dup(key),
		Value:   dup(value),
		Event:   event,
	}
	return q, func() {
		for _, p := range allocated {
			cFree(p)
		}
	}
}

// SectionName returns the section argument as a Go string.
func (q ConfigQuery) SectionName() string {
	return goString(q.Section)
}

func (q ConfigQuery) String() string {
	return fmt.Sprintf("section=%q tag=%q key=%q value=%q",
		goString(q.Section), goString(q.Tag), goString(q.Key), goString(q.Value))
}

// ConfigCallback is the managed configuration lookup function.
type ConfigCallback uintptr

// Lookup invokes the managed callback. It returns nil when the callback is
// unset or returned NULL; otherwise the caller owns the returned string and
// must Release it.
func (f ConfigCallback) Lookup(q ConfigQuery) *ManagedString {
	if f == 0 {
		return nil
	}
	p := callConfig(uintptr(f), q)
	if p == nil {
		return nil
	}
	return newManagedString(p, cFree)
}

// ManagedString is a NUL-terminated buffer allocated on the managed side and
// handed over to native code. Release frees it exactly once.
type ManagedString struct {
	once sync.Once
	ptr  unsafe.Pointer
	n    int
	free func(unsafe.Pointer)
}

func newManagedString(p unsafe.Pointer, free func(unsafe.Pointer)) *ManagedString {
	return &ManagedString{ptr: p, n: cstrlen(p), free: free}
}

// Bytes returns the string contents without the terminator. The slice
// aliases the managed buffer and is invalid after Release; the byte after
// the slice is the NUL terminator.
func (s *ManagedString) Bytes() []byte {
	if s == nil || s.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(s.ptr), s.n)
}

// Len returns the length in bytes, excluding the terminator.
func (s *ManagedString) Len() int {
	return s.n
}

// Release frees the buffer. Later calls do nothing.
func (s *ManagedString) Release() {
	s.once.Do(func() {
		if s.ptr != nil && s.free != nil {
			s.free(s.ptr)
		}
		s.ptr = nil
		s.n = 0
	})
}

func cstrlen(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return n
}
