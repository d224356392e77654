package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/kafka"
)

type fakeProducer struct {
	failures int
	events   []kafka.Event
}

func (f *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.events = append(f.events, event)
	return nil
}

func newTestPublisher(producer eventProducer) *Publisher {
	p := New(producer)
	p.retry.InitialDelay = time.Millisecond
	return p
}

func TestAnnounce(t *testing.T) {
	assert := require.New(t)
	producer := &fakeProducer{failures: 2}
	header := segment.Header{Version: segment.FormatVersion, Checksum: 0xdeadbeef, DocCount: 3, TermCount: 17}

	event, err := newTestPublisher(producer).Announce(context.Background(), "search-index.bin", header, 512)
	assert.NoError(err)
	assert.Len(producer.events, 1)

	sent := producer.events[0]
	assert.Equal("search-index.bin", sent.Key)
	assert.Equal("index.published", sent.Headers["event-type"])

	raw, err := json.Marshal(sent.Value)
	assert.NoError(err)
	decoded, err := kafka.DecodeJSON[IndexPublished](raw)
	assert.NoError(err)
	assert.Equal(uint32(0xdeadbeef), decoded.Checksum)
	assert.Equal(uint32(17), decoded.TermCount)
	assert.Equal(512, decoded.Bytes)
	assert.Equal(event.Key, decoded.Key)
}

func TestAnnounceGivesUp(t *testing.T) {
	producer := &fakeProducer{failures: 100}
	_, err := newTestPublisher(producer).Announce(context.Background(), "k", segment.Header{}, 1)
	require.Error(t, err)
	require.Empty(t, producer.events)
}
