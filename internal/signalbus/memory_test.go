package signalbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

func TestMemoryBus_ConsumeRespectsBatchSize(t *testing.T) {
	b := NewMemoryBus()
	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), domain.Signal{ID: "sig", MerchantKey: "m1", ReceivedAt: time.Now()})
	}

	deliveries, err := b.Consume(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, deliveries, 3)
	assert.Equal(t, 2, b.Len())

	for _, d := range deliveries {
		assert.NoError(t, d.Ack())
	}
}

func TestMemoryBus_ConsumeZeroBatchDrainsAll(t *testing.T) {
	b := NewMemoryBus()
	b.Publish(context.Background(), domain.Signal{ID: "a"})
	b.Publish(context.Background(), domain.Signal{ID: "b"})

	deliveries, err := b.Consume(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)
	assert.Equal(t, 0, b.Len())
}

func TestDecodeSignal_StampsReceivedAtWhenMissing(t *testing.T) {
	s, err := decodeSignal([]byte(`{"id":"sig-1","merchant_key":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, "sig-1", s.ID)
	assert.False(t, s.ReceivedAt.IsZero())
}

func TestDecodeSignal_RejectsMalformedJSON(t *testing.T) {
	_, err := decodeSignal([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, domain.IsInputError(err))
}
