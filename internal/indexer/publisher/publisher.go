// Package publisher announces freshly written index blobs on Kafka so every
// search replica can reload without polling the blob store.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/resilience"
)

// IndexPublished is the event payload. Checksum is the CRC-32 from the blob
// header, which consumers compare with the snapshot they already serve.
type IndexPublished struct {
	Key         string    `json:"key"`
	Checksum    uint32    `json:"checksum"`
	Version     uint32    `json:"version"`
	DocCount    uint32    `json:"doc_count"`
	TermCount   uint32    `json:"term_count"`
	Bytes       int       `json:"bytes"`
	PublishedAt time.Time `json:"published_at"`
}

type eventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	producer eventProducer
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

func New(producer eventProducer) *Publisher {
	return &Publisher{
		producer: producer,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "publisher"),
	}
}

// Announce publishes an IndexPublished event for the blob stored under key.
// The blob key is the message key so all events for one index share a
// partition and arrive in order.
func (p *Publisher) Announce(ctx context.Context, key string, header segment.Header, size int) (IndexPublished, error) {
	event := IndexPublished{
		Key:         key,
		Checksum:    header.Checksum,
		Version:     header.Version,
		DocCount:    header.DocCount,
		TermCount:   header.TermCount,
		Bytes:       size,
		PublishedAt: time.Now().UTC(),
	}
	err := resilience.Retry(ctx, "publish-index", p.retry, func() error {
		return p.producer.Publish(ctx, kafka.Event{
			Key:     key,
			Value:   event,
			Headers: map[string]string{"event-type": "index.published"},
		})
	})
	if err != nil {
		return event, fmt.Errorf("announcing index %s: %w", key, err)
	}
	p.logger.Info("index announced",
		"key", key,
		"checksum", fmt.Sprintf("%08x", header.Checksum),
		"docs", header.DocCount,
		"terms", header.TermCount,
	)
	return event, nil
}
