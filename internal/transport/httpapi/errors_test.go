package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"role denied", domain.ErrRoleDenied, http.StatusForbidden, "forbidden"},
		{"inactive", domain.ErrPrincipalInactive, http.StatusForbidden, "forbidden"},
		{"not owned", domain.ErrOrderNotOwned, http.StatusNotFound, "order_not_found"},
		{"not found", domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{"wrapped not found", fmt.Errorf("load: %w", domain.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
		{"quantity", domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{"limit", domain.ErrQuantityLimitExceeded, http.StatusBadRequest, "quantity_limit_exceeded"},
		{"channel", domain.ErrInvalidChannel, http.StatusBadRequest, "invalid_channel"},
		{"line", domain.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
		{"unavailable", domain.ErrProductUnavailable, http.StatusUnprocessableEntity, "product_unavailable"},
		{"empty cart", domain.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
		{"empty lines", domain.ErrEmptyOrderLines, http.StatusUnprocessableEntity, "empty_order_lines"},
		{"transition", domain.ErrInvalidStatusTransition, http.StatusUnprocessableEntity, "invalid_status_transition"},
		{"finalized", domain.ErrOrderAlreadyFinalized, http.StatusUnprocessableEntity, "order_already_finalized"},
		{"not mutable", domain.ErrOrderNotMutable, http.StatusUnprocessableEntity, "order_not_mutable"},
		{"concurrent", fmt.Errorf("%w: %w", domain.ErrConcurrentModification, domain.ErrOrderVersionConflict), http.StatusConflict, "concurrent_modification"},
		{"catalog", domain.ErrCatalogUnavailable, http.StatusServiceUnavailable, "catalog_unavailable"},
		{"bad request", errBadRequest, http.StatusBadRequest, "bad_request"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestErrorStatus_HidesOwnershipAndInternals(t *testing.T) {
	_, notOwned := errorStatus(domain.ErrOrderNotOwned)
	_, notFound := errorStatus(domain.ErrOrderNotFound)
	assert.Equal(t, notFound, notOwned)
	assert.Empty(t, notFound.Message)

	_, internal := errorStatus(errors.New("pq: password authentication failed"))
	assert.Empty(t, internal.Message)
}

func TestParsePrincipal(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderPrincipalID, "42")
	h.Set(HeaderPrincipalRole, "employee")

	p, ok := parsePrincipal(h)
	assert.True(t, ok)
	assert.Equal(t, domain.Principal{ID: 42, Role: domain.RoleEmployee, Active: true}, p)

	h.Set(HeaderPrincipalActive, "false")
	p, ok = parsePrincipal(h)
	assert.True(t, ok)
	assert.False(t, p.Active)

	h.Set(HeaderPrincipalActive, "maybe")
	_, ok = parsePrincipal(h)
	assert.False(t, ok)

	h.Set(HeaderPrincipalActive, "true")
	h.Set(HeaderPrincipalID, "-1")
	_, ok = parsePrincipal(h)
	assert.False(t, ok)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "order_not_found", snakeCase("OrderNotFound"))
	assert.Equal(t, "internal", snakeCase("Internal"))
}

func TestRequestHashDependsOnMethodAndBody(t *testing.T) {
	a := requestHash("cart.checkout", []byte(`{}`))
	assert.Equal(t, a, requestHash("cart.checkout", []byte(" {}\n")))
	assert.NotEqual(t, a, requestHash("orders.create_walk_in", []byte(`{}`)))
	assert.NotEqual(t, a, requestHash("cart.checkout", []byte(`{"x":1}`)))
}
