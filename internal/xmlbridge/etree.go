package xmlbridge

import (
	"errors"

	"github.com/beevik/etree"
)

// EtreeParser parses documents into etree trees.
type EtreeParser struct {
	Settings etree.ReadSettings
}

// Parse implements Parser. A document without a root element is an error.
func (p EtreeParser) Parse(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = p.Settings
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errors.New("document has no root element")
	}
	return doc, nil
}
