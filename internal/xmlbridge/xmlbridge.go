// Package xmlbridge answers host configuration lookups with documents
// produced by the managed configuration callback.
//
// Every document the callback returns is owned by the bridge for the length
// of one lookup: it is parsed into the host's document model and released
// before the lookup returns, whether parsing succeeded or not.
package xmlbridge

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/recovery"
)

var (
	// ErrNoDocument means the callback had nothing for the query.
	ErrNoDocument = errors.New("xmlbridge: no document")
	// ErrConfigDocumentParseFailed means the returned document is not valid
	// in the host's document format.
	ErrConfigDocumentParseFailed = errors.New("xmlbridge: config document parse failed")
)

// Buffer is a document handed over by the callback. Bytes must stay valid
// until Release.
type Buffer interface {
	Bytes() []byte
	Release()
}

// LookupFunc asks the callback for the document matching q. ok is false
// when the callback returned nothing.
type LookupFunc[Q any] func(q Q) (buf Buffer, ok bool)

// Parser converts a serialized document into the host representation D.
type Parser[D any] interface {
	Parse(raw []byte) (D, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc[D any] func(raw []byte) (D, error)

// Parse calls f.
func (f ParserFunc[D]) Parse(raw []byte) (D, error) {
	return f(raw)
}

// Stats counts lookups since the bridge was created.
type Stats struct {
	Queries       uint64
	Documents     uint64
	Misses        uint64
	ParseFailures uint64
}

// Bridge forwards queries of type Q and yields documents of type D. It holds
// no per-query state and may be used from any number of goroutines.
type Bridge[Q, D any] struct {
	lookup LookupFunc[Q]
	parser Parser[D]
	logger *zap.Logger

	queries   atomic.Uint64
	documents atomic.Uint64
	misses    atomic.Uint64
	failures  atomic.Uint64
}

// New returns a Bridge. A nil lookup answers every query with no match.
func New[Q, D any](lookup LookupFunc[Q], parser Parser[D], logger *zap.Logger) *Bridge[Q, D] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge[Q, D]{lookup: lookup, parser: parser, logger: logger}
}

// Handle answers a host lookup. It returns false for "no match", which
// includes documents that fail to parse; those are logged.
func (b *Bridge[Q, D]) Handle(q Q) (D, bool) {
	doc, err := b.Query(q)
	if err != nil {
		if errors.Is(err, ErrConfigDocumentParseFailed) {
			b.logger.Warn("Unable to parse config document", zap.Any("query", q), zap.Error(err))
		}
		var zero D
		return zero, false
	}
	return doc, true
}

// Query is Handle with the reason for a miss: ErrNoDocument or
// ErrConfigDocumentParseFailed.
func (b *Bridge[Q, D]) Query(q Q) (D, error) {
	var zero D
	b.queries.Add(1)

	if b.lookup == nil {
		b.misses.Add(1)
		return zero, ErrNoDocument
	}

	type found struct {
		buf Buffer
		ok  bool
	}
	res := recovery.SafeCallWithResult(b.logger, "config lookup", found{}, func() found {
		buf, ok := b.lookup(q)
		return found{buf, ok}
	})
	if !res.ok || res.buf == nil {
		b.misses.Add(1)
		return zero, ErrNoDocument
	}
	defer res.buf.Release()

	raw := res.buf.Bytes()
	var doc D
	err := recovery.SafeCallWithError(b.logger, "config parse", func() error {
		if b.parser == nil {
			return errors.New("no parser")
		}
		parsed, err := b.parser.Parse(raw)
		doc = parsed
		return err
	})
	if err != nil {
		b.failures.Add(1)
		return zero, fmt.Errorf("%w: %d bytes: %w", ErrConfigDocumentParseFailed, len(raw), err)
	}

	b.documents.Add(1)
	return doc, nil
}

// Stats returns a snapshot of the counters.
func (b *Bridge[Q, D]) Stats() Stats {
	return Stats{
		Queries:       b.queries.Load(),
		Documents:     b.documents.Load(),
		Misses:        b.misses.Load(),
		ParseFailures: b.failures.Load(),
	}
}
