package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestOutboxRepository_FIFO(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	payload := []byte(`{"status":"ready"}`)
	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder, AggregateID: "7", EventType: domain.EventOrderCreated, Payload: payload,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	payload[0] = 'X'

	for _, eventType := range []string{domain.EventOrderLinesChanged, domain.EventOrderStatusChanged} {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "7", EventType: eventType})
		require.NoError(t, err)
	}

	batch, err := repo.PullPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, domain.EventOrderCreated, batch[0].EventType)
	assert.Equal(t, domain.EventOrderLinesChanged, batch[1].EventType)
	assert.Equal(t, `{"status":"ready"}`, string(batch[0].Payload), "payload is copied on enqueue")

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	rest := repo.AllPending()
	require.Len(t, rest, 2)
	assert.Equal(t, domain.EventOrderLinesChanged, rest[0].EventType)

	all, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2, "non-positive limit falls back to the default batch")
}

func TestOutboxRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStats{}, stats)

	older, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "1", EventType: domain.EventOrderCreated})
	clock = clock.Add(time.Minute)
	_, _ = repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "1", EventType: domain.EventOrderDeleted})

	stats, _ = repo.Stats(ctx)
	assert.Equal(t, 2, stats.PendingCount)
	assert.Equal(t, clock.Add(-time.Minute), stats.OldestPendingAt)

	require.NoError(t, repo.MarkFailed(ctx, older.ID))
	// повторная отметка не уменьшает счётчик ещё раз
	require.NoError(t, repo.MarkSent(ctx, older.ID))
	stats, _ = repo.Stats(ctx)
	assert.Equal(t, 1, stats.PendingCount)
	assert.Equal(t, clock, stats.OldestPendingAt)

	assert.ErrorIs(t, repo.MarkFailed(ctx, "unknown"), domain.ErrOutboxPublish)
}
