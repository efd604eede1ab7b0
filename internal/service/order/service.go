// Package order реализует жизненный цикл заказа: оформление корзины, заказы персонала,
// изменение позиций до выдачи и переходы статусов.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/lock"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/policy"
)

// Dependencies перечисляет хранилища и внешние сервисы движка заказов.
// Timeline и Outbox необязательны.
type Dependencies struct {
	Carts    domain.CartRepository
	Orders   domain.OrderRepository
	Checkout domain.CheckoutRepository
	Catalog  domain.Catalog
	IDs      domain.IDGenerator
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository
	Locks    *lock.Registry
}

// LineRequest описывает позицию заказа, введённую персоналом.
type LineRequest struct {
	ProductID int64
	Qty       int32
}

// WalkInRequest описывает заказ в зале или навынос, созданный персоналом без корзины.
type WalkInRequest struct {
	Channel domain.Channel
	// CustomerID задаёт необязательную привязку к зарегистрированному клиенту.
	CustomerID *int64
	Lines      []LineRequest
}

// Service реализует движок заказов.
type Service struct {
	carts    domain.CartRepository
	orders   domain.OrderRepository
	checkout domain.CheckoutRepository
	catalog  domain.Catalog
	ids      domain.IDGenerator
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	locks    *lock.Registry
	limit    int32
	now      func() time.Time
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
}

// NewService создаёт движок заказов.
func NewService(deps Dependencies, options ...Option) *Service {
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
		logger = log.WithField("component", "order-service")
	}
	if deps.Locks == nil {
		deps.Locks = lock.NewRegistry()
	}

	return &Service{
		carts:    deps.Carts,
		orders:   deps.Orders,
		checkout: deps.Checkout,
		catalog:  deps.Catalog,
		ids:      deps.IDs,
		timeline: deps.Timeline,
		outbox:   deps.Outbox,
		locks:    deps.Locks,
		limit:    opts.MaxLineQuantity,
		now:      opts.Now,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// CreateCustomerOrder оформляет корзину клиента в заказ. Корзина исчезает в той же
// операции; цены берутся из снимка корзины.
func (s *Service) CreateCustomerOrder(ctx context.Context, principal domain.Principal) (order domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCheckout, principal, order.ID, started, err) }()

	if err := policy.Authorize(principal, policy.OpCheckout); err != nil {
		return domain.Order{}, err
	}

	unlockCart, err := s.lock(ctx, s.locks.Carts, "cart", principal.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlockCart()

	cart, err := s.carts.Get(ctx, principal.ID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.Order{}, domain.ErrEmptyCart
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	orderID, err := s.ids.NextOrderID(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("allocate order id: %w", err)
	}
	unlockOrder, err := s.lock(ctx, s.locks.Orders, "order", orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlockOrder()

	now := s.now()
	customerID := principal.ID
	order = domain.Order{
		ID:              orderID,
		CustomerID:      &customerID,
		CreatedBy:       principal.Actor(),
		Channel:         domain.ChannelCartCheckout,
		Status:          domain.OrderStatusCreated,
		Lines:           make([]domain.OrderLine, 0, len(cart.Lines)),
		CreatedAt:       now,
		StatusUpdatedAt: now,
		UpdatedAt:       now,
	}
	for _, line := range cart.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			CreatedAt:      now,
		})
	}
	order.TotalMinor = order.ComputeTotal()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("checkout produced invalid order: %w", errors.Join(errs...))
	}

	if err := s.checkout.CommitCheckout(ctx, order, cart); err != nil {
		return domain.Order{}, s.storageErr("commit checkout", err)
	}

	s.metrics.RecordOrderCreated(string(order.Channel))
	s.emit(ctx, order, principal.Actor(), emission{
		eventType:    domain.EventOrderCreated,
		timelineType: domain.TimelineOrderCreated,
		reason:       "cart checkout",
	})
	return order.Clone(), nil
}

// CreateWalkInOrder создаёт заказ персонала в зале или навынос. Каждая позиция
// проверяется через каталог так же, как добавление в корзину.
func (s *Service) CreateWalkInOrder(ctx context.Context, principal domain.Principal, req WalkInRequest) (order domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCreateWalkInOrder, principal, order.ID, started, err) }()

	if err := policy.Authorize(principal, policy.OpCreateWalkInOrder); err != nil {
		return domain.Order{}, err
	}
	if !req.Channel.WalkIn() {
		return domain.Order{}, domain.ErrInvalidChannel
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, domain.ErrEmptyOrderLines
	}
	for _, line := range req.Lines {
		if err := domain.ValidateQuantity(line.Qty, s.limit); err != nil {
			return domain.Order{}, err
		}
	}

	products := make(map[int64]domain.Product, len(req.Lines))
	for _, line := range req.Lines {
		if _, seen := products[line.ProductID]; seen {
			continue
		}
		product, err := s.catalog.Lookup(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if !product.Available {
			return domain.Order{}, domain.ErrProductUnavailable
		}
		products[line.ProductID] = product
	}

	orderID, err := s.ids.NextOrderID(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("allocate order id: %w", err)
	}

	now := s.now()
	order = domain.Order{
		ID:              orderID,
		CreatedBy:       principal.Actor(),
		Channel:         req.Channel,
		Status:          domain.OrderStatusCreated,
		CreatedAt:       now,
		StatusUpdatedAt: now,
		UpdatedAt:       now,
	}
	if req.CustomerID != nil {
		customerID := *req.CustomerID
		order.CustomerID = &customerID
	}
	for _, line := range req.Lines {
		var lineID int64
		if idx, ok := order.LineByProduct(line.ProductID); ok {
			lineID = order.Lines[idx].ID
		} else if lineID, err = s.ids.NextLineID(ctx); err != nil {
			return domain.Order{}, fmt.Errorf("allocate order line id: %w", err)
		}
		if err := order.AddProduct(lineID, products[line.ProductID], line.Qty, s.limit, now); err != nil {
			return domain.Order{}, err
		}
	}

	unlock, err := s.lock(ctx, s.locks.Orders, "order", orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, s.storageErr("create order", err)
	}

	s.metrics.RecordOrderCreated(string(order.Channel))
	s.emit(ctx, order, principal.Actor(), emission{
		eventType:    domain.EventOrderCreated,
		timelineType: domain.TimelineOrderCreated,
		reason:       string(order.Channel),
	})
	return order.Clone(), nil
}

// AddProductToOrder добавляет товар в заказ до статуса ready и пересчитывает сумму.
func (s *Service) AddProductToOrder(ctx context.Context, principal domain.Principal, orderID, productID int64, qty int32) (order domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpAddProductToOrder, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpAddProductToOrder); err != nil {
		return domain.Order{}, err
	}
	if err := domain.ValidateQuantity(qty, s.limit); err != nil {
		return domain.Order{}, err
	}

	// Ранний отказ без обращения к каталогу; окончательная проверка под блокировкой.
	snapshot, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !snapshot.Status.LinesMutable() {
		return domain.Order{}, domain.ErrOrderNotMutable
	}

	product, err := s.catalog.Lookup(ctx, productID)
	if err != nil {
		return domain.Order{}, err
	}
	if !product.Available {
		return domain.Order{}, domain.ErrProductUnavailable
	}

	unlock, err := s.lock(ctx, s.locks.Orders, "order", orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var lineID int64
	if idx, ok := order.LineByProduct(productID); ok {
		lineID = order.Lines[idx].ID
	} else if lineID, err = s.ids.NextLineID(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("allocate order line id: %w", err)
	}

	if err := order.AddProduct(lineID, product, qty, s.limit, s.now()); err != nil {
		return domain.Order{}, err
	}

	saved, err := s.orders.Save(ctx, order)
	if err != nil {
		return domain.Order{}, s.storageErr("save order", err)
	}

	s.emit(ctx, saved, principal.Actor(), emission{
		eventType:    domain.EventOrderLinesChanged,
		timelineType: domain.TimelineLineAdded,
		reason:       fmt.Sprintf("product %d x%d", productID, qty),
	})
	return saved, nil
}

// RemoveProductFromOrder удаляет позицию заказа до статуса ready и пересчитывает сумму.
func (s *Service) RemoveProductFromOrder(ctx context.Context, principal domain.Principal, orderID, lineID int64) (order domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpRemoveProductOrder, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpRemoveProductOrder); err != nil {
		return domain.Order{}, err
	}

	unlock, err := s.lock(ctx, s.locks.Orders, "order", orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var productID int64
	if idx, ok := order.LineByID(lineID); ok {
		productID = order.Lines[idx].ProductID
	}
	if err := order.RemoveLine(lineID, s.now()); err != nil {
		return domain.Order{}, err
	}

	saved, err := s.orders.Save(ctx, order)
	if err != nil {
		return domain.Order{}, s.storageErr("save order", err)
	}

	s.emit(ctx, saved, principal.Actor(), emission{
		eventType:    domain.EventOrderLinesChanged,
		timelineType: domain.TimelineLineRemoved,
		reason:       fmt.Sprintf("line %d (product %d)", lineID, productID),
	})
	return saved, nil
}

// DeleteOrder безвозвратно удаляет заказ до статуса ready.
func (s *Service) DeleteOrder(ctx context.Context, principal domain.Principal, orderID int64) (err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpDeleteOrder, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpDeleteOrder); err != nil {
		return err
	}

	unlock, err := s.lock(ctx, s.locks.Orders, "order", orderID)
	if err != nil {
		return err
	}
	defer unlock()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Status.LinesMutable() {
		return domain.ErrOrderNotMutable
	}

	if err := s.orders.Delete(ctx, order.ID, order.Version); err != nil {
		return s.storageErr("delete order", err)
	}

	s.metrics.RecordOrderDeleted()
	s.emit(ctx, order, principal.Actor(), emission{
		eventType:    domain.EventOrderDeleted,
		timelineType: domain.TimelineOrderDeleted,
		reason:       "deleted by staff",
	})
	return nil
}

// UpdateOrderStatus применяет переход статуса. Повтор текущего статуса ничего не меняет.
func (s *Service) UpdateOrderStatus(ctx context.Context, principal domain.Principal, orderID int64, target domain.OrderStatus) (order domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpUpdateOrderStatus, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpUpdateOrderStatus); err != nil {
		return domain.Order{}, err
	}

	unlock, err := s.lock(ctx, s.locks.Orders, "order", orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	previous := order.Status
	changed, err := order.TransitionTo(target, s.now())
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return order, nil
	}

	saved, err := s.orders.Save(ctx, order)
	if err != nil {
		return domain.Order{}, s.storageErr("save order", err)
	}

	s.metrics.RecordStatusTransition(string(previous), string(saved.Status))
	s.emit(ctx, saved, principal.Actor(), emission{
		eventType:      domain.EventOrderStatusChanged,
		timelineType:   domain.TimelineStatusChanged,
		previousStatus: previous,
		reason:         strings.Join([]string{string(previous), string(saved.Status)}, " -> "),
	})
	return saved, nil
}

func (s *Service) lock(ctx context.Context, keyed *lock.Keyed, scope string, key int64) (func(), error) {
	waitStarted := time.Now()
	unlock, err := keyed.Lock(ctx, key)
	s.metrics.RecordLockWait(scope, time.Since(waitStarted))
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", scope, err)
	}
	return unlock, nil
}

// storageErr переводит конфликт версий хранилища в ErrConcurrentModification.
func (s *Service) storageErr(op string, err error) error {
	if domain.IsVersionConflict(err) {
		return fmt.Errorf("%w: %w", domain.ErrConcurrentModification, err)
	}
	if errors.Is(err, domain.ErrOrderNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) finish(op policy.Operation, principal domain.Principal, orderID int64, started time.Time, err error) {
	kind := domain.KindOf(err)
	s.metrics.RecordOperation(string(op), string(kind), time.Since(started))

	entry := s.logger.WithFields(log.Fields{
		"operation":    op,
		"principal_id": principal.ID,
		"role":         principal.Role,
	})
	if orderID != 0 {
		entry = entry.WithField("order_id", orderID)
	}
	switch {
	case err == nil:
		entry.Info("order operation applied")
	case kind == domain.KindInternal:
		entry.WithError(err).Error("order operation failed")
	default:
		entry.WithError(err).WithField("kind", kind).Warn("order operation rejected")
	}
}
