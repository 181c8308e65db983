package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/resilience"
	"github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Postgres reads documents from a table with the columns created by
// EnsureSchema, in ascending id order.
type Postgres struct {
	client *postgres.Client
	table  string
	logger *slog.Logger
}

func NewPostgres(client *postgres.Client, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid documents table name %q", table)
	}
	return &Postgres{
		client: client,
		table:  pq.QuoteIdentifier(table),
		logger: slog.Default().With("component", "postgres-source"),
	}, nil
}

func (p *Postgres) schemaSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	abstract    TEXT NOT NULL DEFAULT '',
	task_number INTEGER NOT NULL DEFAULT 0,
	query       TEXT NOT NULL DEFAULT '',
	relevant    BOOLEAN NOT NULL DEFAULT FALSE
)`, p.table)
}

func (p *Postgres) selectSQL() string {
	return fmt.Sprintf(
		"SELECT title, abstract, task_number, query, relevant FROM %s ORDER BY id",
		p.table,
	)
}

func (p *Postgres) insertSQL() string {
	return fmt.Sprintf(
		"INSERT INTO %s (title, abstract, task_number, query, relevant) VALUES ($1, $2, $3, $4, $5)",
		p.table,
	)
}

// EnsureSchema creates the documents table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.client.DB.ExecContext(ctx, p.schemaSQL()); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context) ([]document.Document, error) {
	start := time.Now()
	var docs []document.Document
	err := resilience.Retry(ctx, "load-documents", resilience.RetryConfig{
		Retryable: func(err error) bool { return ctx.Err() == nil },
	}, func(ctx context.Context) error {
		var err error
		docs, err = p.query(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	p.logger.Info("documents loaded",
		"table", p.table,
		"count", len(docs),
		"duration", time.Since(start),
	)
	return docs, nil
}

func (p *Postgres) query(ctx context.Context) ([]document.Document, error) {
	rows, err := p.client.DB.QueryContext(ctx, p.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []document.Document{}
	for rows.Next() {
		var d document.Document
		if err := rows.Scan(&d.Title, &d.Abstract, &d.TaskNumber, &d.Query, &d.Relevant); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

// Save appends docs to the table in one transaction.
func (p *Postgres) Save(ctx context.Context, docs []document.Document) error {
	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, p.insertSQL())
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for i, d := range docs {
			if _, err := stmt.ExecContext(ctx, d.Title, d.Abstract, d.TaskNumber, d.Query, d.Relevant); err != nil {
				return fmt.Errorf("inserting document %d: %w", i, err)
			}
		}
		p.logger.Info("documents saved", "table", p.table, "count", len(docs))
		return nil
	})
}
