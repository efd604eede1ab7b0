package cart_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/lock"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/service/cart"
	"github.com/vladislavdragonenkov/pedidos/internal/service/catalog"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/memory"
)

var customer = domain.Principal{ID: 1, Role: domain.RoleCustomer, Active: true}

type fixture struct {
	service *cart.Service
	catalog *catalog.Static
	carts   domain.CartRepository
}

func newFixture(t *testing.T, options ...cart.Option) fixture {
	t.Helper()

	static := catalog.NewStatic(
		domain.Product{ID: 1, Name: "P1", PriceMinor: 10, Available: true},
		domain.Product{ID: 2, Name: "P2", PriceMinor: 25, Available: true},
		domain.Product{ID: 3, Name: "Sold out", PriceMinor: 5, Available: false},
	)
	m := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())
	guarded := catalog.NewGuarded(static, catalog.WithTimeout(50*time.Millisecond), catalog.WithMetrics(m))
	carts := memory.NewCartRepository()

	options = append([]cart.Option{cart.WithMetrics(m)}, options...)
	svc := cart.NewService(carts, guarded, memory.NewIDGenerator(), lock.NewRegistry(), options...)
	return fixture{service: svc, catalog: static, carts: carts}
}

func TestAddProductSameProductTwiceMergesLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddProduct(ctx, customer, 1, 2)
	require.NoError(t, err)
	view, err := f.service.AddProduct(ctx, customer, 1, 3)
	require.NoError(t, err)

	require.Len(t, view.Cart.Lines, 1)
	assert.Equal(t, int32(5), view.Cart.Lines[0].Qty)
	assert.Equal(t, int64(50), view.TotalMinor)
}

func TestAddProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddProduct(ctx, customer, 1, 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.service.AddProduct(ctx, customer, 3, 1)
	require.ErrorIs(t, err, domain.ErrProductUnavailable)

	_, err = f.service.AddProduct(ctx, customer, 404, 1)
	require.ErrorIs(t, err, domain.ErrProductUnavailable)

	_, err = f.service.AddProduct(ctx, customer, 1, 100)
	require.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)

	_, err = f.carts.Get(ctx, customer.ID)
	require.ErrorIs(t, err, domain.ErrCartNotFound, "rejected adds must not create a cart")
}

func TestAddProductCeilingOnMerge(t *testing.T) {
	f := newFixture(t, cart.WithMaxLineQuantity(5))
	ctx := context.Background()

	_, err := f.service.AddProduct(ctx, customer, 1, 4)
	require.NoError(t, err)
	_, err = f.service.AddProduct(ctx, customer, 1, 2)
	require.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)

	view, err := f.service.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, int32(4), view.Cart.Lines[0].Qty)
}

func TestTotalUsesPriceAtLastSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.service.AddProduct(ctx, customer, 1, 2)
	require.NoError(t, err)
	lineID := view.Cart.Lines[0].ID
	_, err = f.service.AddProduct(ctx, customer, 2, 1)
	require.NoError(t, err)

	// Цена в каталоге меняется: строка P2 не трогается и хранит старую цену.
	f.catalog.SetPrice(1, 12)
	f.catalog.SetPrice(2, 30)

	view, err = f.service.UpdateQuantity(ctx, customer, lineID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3*12+25), view.TotalMinor)
}

type listingCatalog map[int64]domain.Product

func (c listingCatalog) Lookup(_ context.Context, productID int64) (domain.Product, error) {
	product, ok := c[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductUnavailable
	}
	return product, nil
}

func TestAddProductChecksAvailableFlag(t *testing.T) {
	ctx := context.Background()
	carts := memory.NewCartRepository()
	svc := cart.NewService(carts, listingCatalog{
		1: {ID: 1, Name: "Sold out", PriceMinor: 10, Available: false},
	}, memory.NewIDGenerator(), lock.NewRegistry())

	_, err := svc.AddProduct(ctx, customer, 1, 1)
	require.ErrorIs(t, err, domain.ErrProductUnavailable)

	_, err = carts.Get(ctx, customer.ID)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestUpdateQuantityRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.service.AddProduct(ctx, customer, 1, 2)
	require.NoError(t, err)
	lineID := view.Cart.Lines[0].ID

	for _, qty := range []int32{0, -1} {
		_, err = f.service.UpdateQuantity(ctx, customer, lineID, qty)
		require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	}

	after, err := f.service.GetCart(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, view.Cart.Lines, after.Cart.Lines)
	assert.Equal(t, view.TotalMinor, after.TotalMinor)

	_, err = f.service.UpdateQuantity(ctx, customer, 9999, 1)
	require.ErrorIs(t, err, domain.ErrLineNotFound)
}

func TestRemoveProductAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.service.AddProduct(ctx, customer, 1, 2)
	require.NoError(t, err)
	lineID := view.Cart.Lines[0].ID
	_, err = f.service.AddProduct(ctx, customer, 2, 1)
	require.NoError(t, err)

	view, err = f.service.RemoveProduct(ctx, customer, lineID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), view.TotalMinor)

	_, err = f.service.RemoveProduct(ctx, customer, lineID)
	require.ErrorIs(t, err, domain.ErrLineNotFound)

	view, err = f.service.Clear(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.Lines)
	assert.Zero(t, view.TotalMinor)

	_, err = f.service.Clear(ctx, customer)
	require.NoError(t, err, "clear is idempotent")
}

func TestGetCartWithoutCart(t *testing.T) {
	f := newFixture(t)

	view, err := f.service.GetCart(context.Background(), customer)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, view.Cart.CustomerID)
	assert.Empty(t, view.Cart.Lines)
}

func TestAccessPolicyIsEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	employee := domain.Principal{ID: 2, Role: domain.RoleEmployee, Active: true}
	_, err := f.service.AddProduct(ctx, employee, 1, 1)
	require.ErrorIs(t, err, domain.ErrRoleDenied)

	inactive := domain.Principal{ID: 3, Role: domain.RoleCustomer, Active: false}
	_, err = f.service.GetCart(ctx, inactive)
	require.ErrorIs(t, err, domain.ErrPrincipalInactive)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCatalogTimeoutLeavesCartUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddProduct(ctx, customer, 1, 1)
	require.NoError(t, err)

	f.catalog.SetDelay(time.Second)
	_, err = f.service.AddProduct(ctx, customer, 2, 1)
	require.ErrorIs(t, err, domain.ErrCatalogUnavailable)

	f.catalog.SetDelay(0)
	view, err := f.service.GetCart(ctx, customer)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)
	assert.Equal(t, int64(10), view.TotalMinor)
}

func TestConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.AddProduct(ctx, customer, 1, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.service.GetCart(ctx, customer)
	require.NoError(t, err)
	require.Len(t, view.Cart.Lines, 1)
	assert.Equal(t, int32(workers), view.Cart.Lines[0].Qty)
	assert.Equal(t, int64(workers*10), view.TotalMinor)
}
