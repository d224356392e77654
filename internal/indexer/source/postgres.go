package source

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/postgres"
)

// Postgres reads articles with a configured query. Columns are matched to the
// mapping by name; a NULL column is treated like an absent key.
type Postgres struct {
	client  *postgres.Client
	query   string
	mapping Mapping
	logger  *slog.Logger
}

func NewPostgres(client *postgres.Client, query string, mapping Mapping) *Postgres {
	return &Postgres{
		client:  client,
		query:   query,
		mapping: mapping,
		logger:  slog.Default().With("component", "postgres-source"),
	}
}

// Documents runs the query inside a read-only snapshot so the corpus stays
// consistent even while the table is being written.
func (s *Postgres) Documents(ctx context.Context) ([]index.Document, error) {
	var docs []index.Document
	err := s.client.ReadSnapshot(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.query)
		if err != nil {
			return fmt.Errorf("querying documents: %w", err)
		}
		defer rows.Close()

		columns, err := rows.ColumnTypes()
		if err != nil {
			return fmt.Errorf("reading column types: %w", err)
		}
		names := make([]string, len(columns))
		jsonColumns := make(map[string]bool)
		for i, column := range columns {
			names[i] = column.Name()
			switch strings.ToUpper(column.DatabaseTypeName()) {
			case "JSON", "JSONB":
				jsonColumns[column.Name()] = true
			}
		}

		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scanning row %d: %w", len(docs), err)
			}
			record, err := rowRecord(names, jsonColumns, values)
			if err != nil {
				return fmt.Errorf("row %d: %w", len(docs), err)
			}
			doc, err := s.mapping.FromRecord(len(docs), record)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("documents loaded", "count", len(docs), "database", s.client.String())
	return docs, nil
}

// rowRecord turns one scanned row into the same shape a JSON record has.
// Text columns become JSON strings; json and jsonb columns are kept as is.
func rowRecord(names []string, jsonColumns map[string]bool, values []sql.NullString) (map[string]json.RawMessage, error) {
	record := make(map[string]json.RawMessage, len(names))
	for i, name := range names {
		if !values[i].Valid {
			continue
		}
		if jsonColumns[name] {
			if !json.Valid([]byte(values[i].String)) {
				return nil, fmt.Errorf("column %s holds invalid JSON", name)
			}
			record[name] = json.RawMessage(values[i].String)
			continue
		}
		var buf bytes.Buffer
		encoder := json.NewEncoder(&buf)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(values[i].String); err != nil {
			return nil, fmt.Errorf("encoding column %s: %w", name, err)
		}
		record[name] = json.RawMessage(bytes.TrimSpace(buf.Bytes()))
	}
	return record, nil
}
