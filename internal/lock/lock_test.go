package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	locks := NewKeyed()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), 1)
			if err != nil {
				t.Error(err)
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.Len())
}

func TestKeyedDifferentKeysDoNotBlock(t *testing.T) {
	locks := NewKeyed()

	unlockA, err := locks.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.Lock(ctx, 2)
	require.NoError(t, err)
	unlockB()
}

func TestKeyedLockHonoursContext(t *testing.T) {
	locks := NewKeyed()

	unlock, err := locks.Lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, 7)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	// Повторный вызов unlock безопасен.
	unlock()
	assert.Zero(t, locks.Len())

	unlock, err = locks.Lock(context.Background(), 7)
	require.NoError(t, err)
	unlock()
}

func TestRegistryDomainsAreIndependent(t *testing.T) {
	registry := NewRegistry()

	unlockCart, err := registry.Carts.Lock(context.Background(), 5)
	require.NoError(t, err)
	defer unlockCart()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockOrder, err := registry.Orders.Lock(ctx, 5)
	require.NoError(t, err)
	unlockOrder()
}
