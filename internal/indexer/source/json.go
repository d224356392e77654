package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
)

// JSONFile reads a JSON array of article objects, the format the site build
// exports.
type JSONFile struct {
	path    string
	mapping Mapping
	logger  *slog.Logger
}

func NewJSONFile(path string, mapping Mapping) *JSONFile {
	return &JSONFile{
		path:    path,
		mapping: mapping,
		logger:  slog.Default().With("component", "json-source"),
	}
}

func (s *JSONFile) Documents(ctx context.Context) ([]index.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading documents from %s: %w", s.path, err)
	}
	docs, err := DecodeJSON(data, s.mapping)
	if err != nil {
		return nil, fmt.Errorf("decoding documents from %s: %w", s.path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("documents loaded", "path", s.path, "count", len(docs))
	return docs, nil
}

// DecodeJSON maps a JSON array of objects onto documents, keeping array order.
func DecodeJSON(data []byte, mapping Mapping) ([]index.Document, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}
	docs := make([]index.Document, 0, len(records))
	for i, record := range records {
		if record == nil {
			return nil, fmt.Errorf("record %d is null", i)
		}
		doc, err := mapping.FromRecord(i, record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
