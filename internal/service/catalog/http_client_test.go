package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestHTTPClientLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":1,"name":"Tea","price_minor":120,"available":true}`))
		case "/products/2":
			_, _ = w.Write([]byte(`{"id":2,"name":"Cake","price_minor":300,"available":false}`))
		case "/products/3":
			w.WriteHeader(http.StatusBadGateway)
		case "/products/4":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", server.Client())

	product, err := client.Lookup(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Product{ID: 1, Name: "Tea", PriceMinor: 120, Available: true}, product)

	_, err = client.Lookup(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrProductUnavailable)

	_, err = client.Lookup(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)

	_, err = client.Lookup(context.Background(), 4)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)

	_, err = client.Lookup(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrProductUnavailable)
}

func TestHTTPClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewHTTPClient(url, nil)
	_, err := client.Lookup(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
}
