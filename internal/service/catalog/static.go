package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Static реализует потокобезопасный каталог в памяти для dev-окружения и тестов.
type Static struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	delay    time.Duration
	failWith error
	calls    int
}

// NewStatic создаёт каталог с начальным набором товаров.
func NewStatic(products ...domain.Product) *Static {
	s := &Static{products: make(map[int64]domain.Product, len(products))}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// DemoProducts возвращает небольшой ассортимент для локального запуска без внешнего каталога.
func DemoProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Name: "Espresso", PriceMinor: 150, Available: true},
		{ID: 2, Name: "Cappuccino", PriceMinor: 250, Available: true},
		{ID: 3, Name: "Croissant", PriceMinor: 200, Available: true},
		{ID: 4, Name: "Club sandwich", PriceMinor: 650, Available: true},
		{ID: 5, Name: "Seasonal pie", PriceMinor: 400, Available: false},
	}
}

// Set добавляет или заменяет товар.
func (s *Static) Set(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// SetPrice меняет цену существующего товара.
func (s *Static) SetPrice(productID, priceMinor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.PriceMinor = priceMinor
		s.products[productID] = p
	}
}

// SetAvailable меняет доступность существующего товара.
func (s *Static) SetAvailable(productID int64, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Available = available
		s.products[productID] = p
	}
}

// SetDelay задаёт задержку каждого ответа.
func (s *Static) SetDelay(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = delay
}

// FailWith заставляет каталог отвечать ошибкой err; nil возвращает нормальную работу.
func (s *Static) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Calls возвращает число обращений к Lookup.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// Lookup реализует domain.Catalog.
func (s *Static) Lookup(ctx context.Context, productID int64) (domain.Product, error) {
	s.mu.Lock()
	s.calls++
	delay := s.delay
	failWith := s.failWith
	product, ok := s.products[productID]
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Product{}, ctx.Err()
		case <-timer.C:
		}
	}
	if failWith != nil {
		return domain.Product{}, failWith
	}
	if !ok || !product.Available {
		return domain.Product{}, domain.ErrProductUnavailable
	}
	return product, nil
}

var _ domain.Catalog = (*Static)(nil)
