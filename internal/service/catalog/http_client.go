package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const maxResponseBytes = 1 << 20

// productResponse повторяет JSON-представление товара во внешнем каталоге.
type productResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Available  bool   `json:"available"`
}

// HTTPClient обращается к внешнему каталогу: GET {base}/products/{id}.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient создаёт клиент каталога. При httpClient == nil используется клиент с трассировкой
// и пулом соединений.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		transport := &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
		httpClient = &http.Client{Transport: otelhttp.NewTransport(transport)}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Lookup реализует domain.Catalog. Ответ 404 означает неизвестный товар,
// сетевые ошибки и 5xx означают недоступный каталог.
func (c *HTTPClient) Lookup(ctx context.Context, productID int64) (domain.Product, error) {
	url := c.baseURL + "/products/" + strconv.FormatInt(productID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Product{}, fmt.Errorf("catalog request: %w: %w", domain.ErrCatalogUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Product{}, domain.ErrProductUnavailable
	case resp.StatusCode >= 500:
		return domain.Product{}, fmt.Errorf("catalog status %d: %w", resp.StatusCode, domain.ErrCatalogUnavailable)
	case resp.StatusCode != http.StatusOK:
		return domain.Product{}, fmt.Errorf("unexpected catalog status %d", resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return domain.Product{}, fmt.Errorf("decode catalog response: %w: %w", domain.ErrCatalogUnavailable, err)
	}
	if body.ID != productID || body.PriceMinor < 0 {
		return domain.Product{}, fmt.Errorf("catalog returned inconsistent product %d: %w", body.ID, domain.ErrCatalogUnavailable)
	}
	if !body.Available {
		return domain.Product{}, domain.ErrProductUnavailable
	}

	return domain.Product{
		ID:         body.ID,
		Name:       body.Name,
		PriceMinor: body.PriceMinor,
		Available:  body.Available,
	}, nil
}

var _ domain.Catalog = (*HTTPClient)(nil)
