// Package source loads the already-parsed document collection the engine
// indexes, either from a YAML/JSON file or from a Postgres table.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/postgres"
)

// Source yields a document collection in its stored order.
type Source interface {
	Load(ctx context.Context) ([]document.Document, error)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the Source selected by cfg.Source. The returned Closer
// releases any connection the source holds.
func Open(ctx context.Context, cfg *config.Config) (Source, io.Closer, error) {
	switch cfg.Source.Type {
	case "file":
		if cfg.Source.Path == "" {
			return nil, nil, fmt.Errorf("source.path is required for a file source")
		}
		return NewFile(cfg.Source.Path), nopCloser{}, nil
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting document store: %w", err)
		}
		src, err := NewPostgres(client, cfg.Source.Table)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return src, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}
