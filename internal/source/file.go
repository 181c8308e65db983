package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"gopkg.in/yaml.v3"
)

// Collection is the on-disk shape of a document file. A file may also hold
// a bare top-level list of documents.
type Collection struct {
	Documents []document.Document `yaml:"documents" json:"documents"`
}

// File reads a collection from a YAML or JSON file. JSON is read through
// the YAML decoder, which accepts it as a subset.
type File struct {
	path   string
	logger *slog.Logger
}

func NewFile(path string) *File {
	return &File{
		path:   path,
		logger: slog.Default().With("component", "file-source"),
	}
}

func (f *File) Load(ctx context.Context) ([]document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading document file %s: %w", f.path, err)
	}
	docs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing document file %s: %w", f.path, err)
	}
	f.logger.Info("documents loaded", "path", f.path, "count", len(docs))
	return docs, nil
}

// Decode parses a collection from YAML or JSON bytes. An empty input is an
// empty collection.
func Decode(data []byte) ([]document.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []document.Document{}, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}

	var docs []document.Document
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&docs); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var c Collection
		if err := node.Decode(&c); err != nil {
			return nil, err
		}
		docs = c.Documents
	default:
		return nil, fmt.Errorf("expected a document list or a documents mapping at line %d", node.Line)
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return docs, nil
}

// Encode renders docs in the file format Decode reads.
func Encode(docs []document.Document) ([]byte, error) {
	return yaml.Marshal(Collection{Documents: docs})
}
