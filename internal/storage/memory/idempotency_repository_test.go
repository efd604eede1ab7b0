package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func newIdempotencyRepoAt(now *time.Time) *IdempotencyRepository {
	repo := NewIdempotencyRepository()
	repo.now = func() time.Time { return *now }
	return repo
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	repo := newIdempotencyRepoAt(&now)

	created, err := repo.CreateProcessing(ctx, " customer:1:k ", "hash", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "customer:1:k", created.Key)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	body := []byte(`{"id":1}`)
	require.NoError(t, repo.MarkDone(ctx, "customer:1:k", body, 201))
	body[0] = 'X'

	got, err := repo.Get(ctx, "customer:1:k")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, got.Status)
	assert.Equal(t, 201, got.HTTPStatus)
	assert.JSONEq(t, `{"id":1}`, string(got.ResponseBody), "stored body must not alias caller's slice")

	require.NoError(t, repo.MarkFailed(ctx, "customer:1:k", nil, 409))
	got, err = repo.Get(ctx, "customer:1:k")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, got.Status)
}

func TestIdempotencyRepository_Conflicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	repo := newIdempotencyRepoAt(&now)

	_, err := repo.CreateProcessing(ctx, "k", "hash-a", now.Add(time.Hour))
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, "k", "hash-a", now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	assert.Equal(t, "hash-a", existing.RequestHash)

	_, err = repo.CreateProcessing(ctx, "k", "hash-b", now.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	// после истечения ключ снова свободен
	now = now.Add(2 * time.Hour)
	_, err = repo.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	reused, err := repo.CreateProcessing(ctx, "k", "hash-b", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, now.Add(domain.DefaultIdempotencyTTL), reused.TTLAt)
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "", "hash", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "k", " ", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	_, err = repo.Get(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	assert.ErrorIs(t, repo.MarkDone(ctx, "missing", nil, 200), domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "", nil, 500), domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_DeleteReleasesKey(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "k", "hash", time.Time{})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, " k "))
	_, err = repo.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	assert.NoError(t, repo.Delete(ctx, "k"), "deleting a missing key is a no-op")
	assert.ErrorIs(t, repo.Delete(ctx, ""), domain.ErrIdempotencyKeyRequired)

	_, err = repo.CreateProcessing(ctx, "k", "hash", time.Time{})
	assert.NoError(t, err)
}

func TestIdempotencyRepository_DeleteExpiredOldestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	repo := newIdempotencyRepoAt(&now)

	for i, ttl := range []time.Duration{-3 * time.Minute, -time.Minute, -2 * time.Minute, time.Hour} {
		_, err := repo.CreateProcessing(ctx, string(rune('a'+i)), "hash", now.Add(ttl))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Contains(t, repo.keys, "b", "the most recently expired key survives a limited pass")

	removed, err = repo.DeleteExpired(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, repo.keys, 1)
}

func TestIdempotencyRepository_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.CreateProcessing(ctx, "race", "hash", time.Time{}); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
