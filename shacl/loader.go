package shacl

import (
	"encoding/json"
	"os"

	"github.com/ldkit/ldk"
	"github.com/piprate/json-gold/ld"
	"github.com/pkg/errors"
)

// localLoader serves JSON-LD contexts from memory. It never goes to the
// network; an unknown URL is an error.
type localLoader struct {
	docs map[string]interface{}
}

// LoadDocument implements ld.DocumentLoader.
func (l *localLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	doc, ok := l.docs[u]
	if !ok {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, "no local copy of "+u)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: ldk.DeepCopy(doc)}, nil
}

// contextOf returns the value to put under @context for a context document
// held locally.
func (l *localLoader) contextOf(u string) (interface{}, bool) {
	doc, ok := l.docs[u]
	if !ok {
		return nil, false
	}
	if m, ok := doc.(map[string]interface{}); ok {
		if ctx, ok := m[ldk.KeyContext]; ok {
			return ldk.DeepCopy(ctx), true
		}
	}
	return ldk.DeepCopy(doc), true
}

func readContextFile(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading context")
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding context %s", path)
	}
	return doc, nil
}
