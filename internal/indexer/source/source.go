// Package source reads the article corpus that feeds an index build. Every
// source returns documents in a stable order; that order becomes the ranking
// tie-break order.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
)

type Source interface {
	Documents(ctx context.Context) ([]index.Document, error)
}

// Mapping names the record keys (or columns) that carry the document id, the
// indexed fields and the display payload.
type Mapping struct {
	IDField      string
	PayloadField string
	Fields       []string
}

func MappingFromConfig(cfg config.IndexerConfig) Mapping {
	return Mapping{
		IDField:      cfg.IDField,
		PayloadField: cfg.PayloadField,
		Fields:       append([]string(nil), cfg.Fields...),
	}
}

// FromRecord converts one decoded JSON object into a Document. A field key
// that is absent from the record is left out of Document.Fields so the
// builder can report it; a null value counts as empty text.
func (m Mapping) FromRecord(position int, record map[string]json.RawMessage) (index.Document, error) {
	doc := index.Document{Fields: make(map[string]string, len(m.Fields))}

	if raw, ok := record[m.IDField]; ok {
		id, err := idString(raw)
		if err != nil {
			return index.Document{}, fmt.Errorf("record %d: %s: %w", position, m.IDField, err)
		}
		doc.ID = id
	}
	for _, field := range m.Fields {
		raw, ok := record[field]
		if !ok {
			continue
		}
		text, err := fieldText(raw)
		if err != nil {
			return index.Document{}, fmt.Errorf("record %d: field %s: %w", position, field, err)
		}
		doc.Fields[field] = text
	}
	if m.PayloadField != "" {
		if raw, ok := record[m.PayloadField]; ok {
			doc.Payload = append(json.RawMessage(nil), raw...)
		}
	}
	return doc, nil
}

func idString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("id must be a string or a number, got %s", truncate(trimmed))
}

// fieldText accepts strings, numbers, null and arrays of strings. Arrays are
// joined with ", ", which is how author lists read on the page.
func fieldText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String(), nil
	}
	var parts []string
	if err := json.Unmarshal(trimmed, &parts); err == nil {
		return strings.Join(parts, ", "), nil
	}
	return "", fmt.Errorf("expected text, got %s", truncate(trimmed))
}

func truncate(raw []byte) string {
	const limit = 40
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
