// Package cart реализует операции над корзиной клиента.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/lock"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/policy"
)

// DefaultMaxLineQuantity задаёт потолок количества в строке, если не задан явно.
const DefaultMaxLineQuantity int32 = 99

// View содержит снимок корзины с пересчитанной суммой.
type View struct {
	Cart       domain.Cart
	TotalMinor int64
}

func newView(cart domain.Cart) View {
	cart = cart.Clone()
	return View{Cart: cart, TotalMinor: cart.TotalMinor()}
}

// Options задаёт параметры сервиса корзины.
type Options struct {
	Logger          *log.Entry
	Metrics         *metrics.OrderMetrics
	MaxLineQuantity int32
	Now             func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithMaxLineQuantity задаёт потолок количества в строке.
func WithMaxLineQuantity(limit int32) Option {
	return func(opts *Options) {
		opts.MaxLineQuantity = limit
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Service реализует движок корзины. Мутации одной корзины сериализуются блокировкой клиента,
// обращение к каталогу выполняется до захвата блокировки.
type Service struct {
	carts   domain.CartRepository
	catalog domain.Catalog
	ids     domain.IDGenerator
	locks   *lock.Keyed
	limit   int32
	now     func() time.Time
	metrics *metrics.OrderMetrics
	logger  *log.Entry
}

// NewService создаёт движок корзины.
func NewService(carts domain.CartRepository, catalog domain.Catalog, ids domain.IDGenerator, locks *lock.Registry, options ...Option) *Service {
	opts := Options{MaxLineQuantity: DefaultMaxLineQuantity}
	for _, option := range options {
		option(&opts)
	}
	if opts.MaxLineQuantity <= 0 {
		opts.MaxLineQuantity = DefaultMaxLineQuantity
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}
	if locks == nil {
		locks = lock.NewRegistry()
	}

	return &Service{
		carts:   carts,
		catalog: catalog,
		ids:     ids,
		locks:   locks.Carts,
		limit:   opts.MaxLineQuantity,
		now:     opts.Now,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// AddProduct добавляет товар в корзину клиента по текущей цене каталога.
func (s *Service) AddProduct(ctx context.Context, principal domain.Principal, productID int64, qty int32) (view View, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCartAddProduct, principal, started, err) }()

	if err := policy.Authorize(principal, policy.OpCartAddProduct); err != nil {
		return View{}, err
	}
	if err := domain.ValidateQuantity(qty, s.limit); err != nil {
		return View{}, err
	}

	product, err := s.catalog.Lookup(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if !product.Available {
		return View{}, domain.ErrProductUnavailable
	}

	unlock, err := s.lock(ctx, principal.ID)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	cart, err := s.loadOrNew(ctx, principal.ID)
	if err != nil {
		return View{}, err
	}

	var lineID int64
	if idx, ok := cart.LineByProduct(productID); ok {
		lineID = cart.Lines[idx].ID
	} else if lineID, err = s.ids.NextLineID(ctx); err != nil {
		return View{}, fmt.Errorf("allocate cart line id: %w", err)
	}

	if err := cart.AddProduct(lineID, product, qty, s.limit, s.now()); err != nil {
		return View{}, err
	}
	return s.save(ctx, cart)
}

// RemoveProduct удаляет строку корзины целиком.
func (s *Service) RemoveProduct(ctx context.Context, principal domain.Principal, lineID int64) (view View, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCartRemoveProduct, principal, started, err) }()

	if err := policy.Authorize(principal, policy.OpCartRemoveProduct); err != nil {
		return View{}, err
	}

	unlock, err := s.lock(ctx, principal.ID)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	cart, err := s.carts.Get(ctx, principal.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return View{}, domain.ErrLineNotFound
	}
	if err != nil {
		return View{}, err
	}

	if err := cart.RemoveLine(lineID, s.now()); err != nil {
		return View{}, err
	}
	return s.save(ctx, cart)
}

// UpdateQuantity заменяет количество строки. Строка «устанавливается» заново
// и получает текущую цену каталога.
func (s *Service) UpdateQuantity(ctx context.Context, principal domain.Principal, lineID int64, qty int32) (view View, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCartUpdateQuantity, principal, started, err) }()

	if err := policy.Authorize(principal, policy.OpCartUpdateQuantity); err != nil {
		return View{}, err
	}
	if err := domain.ValidateQuantity(qty, s.limit); err != nil {
		return View{}, err
	}

	// Снимок без блокировки нужен только чтобы узнать товар строки.
	snapshot, err := s.carts.Get(ctx, principal.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return View{}, domain.ErrLineNotFound
	}
	if err != nil {
		return View{}, err
	}
	idx, ok := snapshot.LineByID(lineID)
	if !ok {
		return View{}, domain.ErrLineNotFound
	}
	productID := snapshot.Lines[idx].ProductID

	product, err := s.catalog.Lookup(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if !product.Available {
		return View{}, domain.ErrProductUnavailable
	}

	unlock, err := s.lock(ctx, principal.ID)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	// Перепроверка под блокировкой: строку могли удалить между снимком и захватом.
	cart, err := s.carts.Get(ctx, principal.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return View{}, domain.ErrLineNotFound
	}
	if err != nil {
		return View{}, err
	}
	if idx, ok := cart.LineByID(lineID); !ok || cart.Lines[idx].ProductID != productID {
		return View{}, domain.ErrLineNotFound
	}

	if err := cart.SetQuantity(lineID, qty, s.limit, product.PriceMinor, s.now()); err != nil {
		return View{}, err
	}
	return s.save(ctx, cart)
}

// Clear очищает корзину. Очистка пустой или отсутствующей корзины успешна.
func (s *Service) Clear(ctx context.Context, principal domain.Principal) (view View, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCartClear, principal, started, err) }()

	if err := policy.Authorize(principal, policy.OpCartClear); err != nil {
		return View{}, err
	}

	unlock, err := s.lock(ctx, principal.ID)
	if err != nil {
		return View{}, err
	}
	defer unlock()

	cart, err := s.carts.Get(ctx, principal.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return newView(domain.NewCart(principal.ID, s.now())), nil
	}
	if err != nil {
		return View{}, err
	}
	if cart.IsEmpty() {
		return newView(cart), nil
	}

	cart.Clear(s.now())
	return s.save(ctx, cart)
}

// GetCart возвращает снимок корзины без захвата блокировки.
func (s *Service) GetCart(ctx context.Context, principal domain.Principal) (view View, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCartView, principal, started, err) }()

	if err := policy.Authorize(principal, policy.OpCartView); err != nil {
		return View{}, err
	}

	cart, err := s.carts.Get(ctx, principal.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return newView(domain.NewCart(principal.ID, s.now())), nil
	}
	if err != nil {
		return View{}, err
	}
	return newView(cart), nil
}

func (s *Service) loadOrNew(ctx context.Context, customerID int64) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.NewCart(customerID, s.now()), nil
	}
	return cart, err
}

func (s *Service) save(ctx context.Context, cart domain.Cart) (View, error) {
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		if domain.IsVersionConflict(err) {
			return View{}, fmt.Errorf("%w: %w", domain.ErrConcurrentModification, err)
		}
		return View{}, fmt.Errorf("save cart: %w", err)
	}
	return newView(saved), nil
}

func (s *Service) lock(ctx context.Context, customerID int64) (func(), error) {
	waitStarted := time.Now()
	unlock, err := s.locks.Lock(ctx, customerID)
	s.metrics.RecordLockWait("cart", time.Since(waitStarted))
	if err != nil {
		return nil, fmt.Errorf("acquire cart lock: %w", err)
	}
	return unlock, nil
}

func (s *Service) finish(op policy.Operation, principal domain.Principal, started time.Time, err error) {
	kind := domain.KindOf(err)
	s.metrics.RecordOperation(string(op), string(kind), time.Since(started))

	entry := s.logger.WithFields(log.Fields{
		"operation":   op,
		"customer_id": principal.ID,
	})
	switch {
	case err == nil:
		entry.Debug("cart operation applied")
	case kind == domain.KindInternal:
		entry.WithError(err).Error("cart operation failed")
	default:
		entry.WithError(err).WithField("kind", kind).Warn("cart operation rejected")
	}
}
