package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const testLimit int32 = 99

func TestCartAddProductMergesLines(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)

	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 2, testLimit, now))
	require.NoError(t, cart.AddProduct(11, domain.Product{ID: 5, PriceMinor: 120}, 3, testLimit, now))

	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(10), cart.Lines[0].ID)
	assert.Equal(t, int32(5), cart.Lines[0].Qty)
	// Строка «установлена» заново и получила актуальную цену.
	assert.Equal(t, int64(600), cart.TotalMinor())
}

func TestCartAddProductRejectsInvalidQuantity(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)

	for _, qty := range []int32{0, -3} {
		err := cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, qty, testLimit, now)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	}
	assert.True(t, cart.IsEmpty())
}

func TestCartAddProductCeiling(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)

	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 98, testLimit, now))
	err := cart.AddProduct(11, domain.Product{ID: 5, PriceMinor: 100}, 2, testLimit, now)
	require.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)
	assert.Equal(t, int32(98), cart.Lines[0].Qty)

	err = cart.AddProduct(12, domain.Product{ID: 6, PriceMinor: 100}, 100, testLimit, now)
	require.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)
	assert.Len(t, cart.Lines, 1)
}

func TestCartSetQuantity(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)
	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 2, testLimit, now))

	require.ErrorIs(t, cart.SetQuantity(10, 0, testLimit, 100, now), domain.ErrInvalidQuantity)
	assert.Equal(t, int32(2), cart.Lines[0].Qty)

	require.ErrorIs(t, cart.SetQuantity(99, 1, testLimit, 100, now), domain.ErrLineNotFound)

	require.NoError(t, cart.SetQuantity(10, 4, testLimit, 150, now))
	assert.Equal(t, int64(600), cart.TotalMinor())
}

func TestCartRemoveAndClear(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)
	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 2, testLimit, now))
	require.NoError(t, cart.AddProduct(11, domain.Product{ID: 6, PriceMinor: 300}, 1, testLimit, now))

	require.ErrorIs(t, cart.RemoveLine(77, now), domain.ErrLineNotFound)
	require.NoError(t, cart.RemoveLine(10, now))
	assert.Equal(t, int64(300), cart.TotalMinor())

	cart.Clear(now)
	cart.Clear(now)
	assert.True(t, cart.IsEmpty())
	assert.Zero(t, cart.TotalMinor())
}

func TestCartLastModifiedAtIsMonotonic(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)
	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 1, testLimit, now))
	first := cart.LastModifiedAt

	// Часы ушли назад.
	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 1, testLimit, now.Add(-time.Hour)))
	assert.True(t, cart.LastModifiedAt.After(first))
}

func TestCartCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	cart := domain.NewCart(1, now)
	require.NoError(t, cart.AddProduct(10, domain.Product{ID: 5, PriceMinor: 100}, 1, testLimit, now))

	clone := cart.Clone()
	clone.Lines[0].Qty = 50
	assert.Equal(t, int32(1), cart.Lines[0].Qty)
}
