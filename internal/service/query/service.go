// Package query отдаёт согласованные снимки заказов клиентам и персоналу.
package query

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/metrics"
	"github.com/vladislavdragonenkov/pedidos/internal/policy"
)

const (
	// DefaultPageSize задаёт размер страницы listAllOrders по умолчанию.
	DefaultPageSize = 50
	// MaxPageSize задаёт верхнюю границу размера страницы.
	MaxPageSize = 200
)

// OrderDetail содержит заказ вместе с историей изменений.
type OrderDetail struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// StatusView описывает ответ на проверку статуса заказа.
type StatusView struct {
	OrderID         int64
	Status          domain.OrderStatus
	StatusUpdatedAt time.Time
}

// Page содержит страницу списка заказов.
type Page struct {
	Orders []domain.Order
	Total  int
	Offset int
	Limit  int
}

// Options задаёт параметры сервиса чтения.
type Options struct {
	Logger          *log.Entry
	Metrics         *metrics.OrderMetrics
	DefaultPageSize int
	MaxPageSize     int
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

// WithPageSizes задаёт размер страницы по умолчанию и его верхнюю границу.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(opts *Options) {
		opts.DefaultPageSize = defaultSize
		opts.MaxPageSize = maxSize
	}
}

// Service читает заказы. Блокировок не берёт: репозитории отдают копии.
type Service struct {
	orders      domain.OrderRepository
	timeline    domain.TimelineRepository
	defaultPage int
	maxPage     int
	metrics     *metrics.OrderMetrics
	logger      *log.Entry
}

// NewService создаёт сервис чтения. timeline может быть nil.
func NewService(orders domain.OrderRepository, timeline domain.TimelineRepository, options ...Option) *Service {
	opts := Options{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}
	for _, option := range options {
		option(&opts)
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = min(DefaultPageSize, opts.MaxPageSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-query")
	}

	return &Service{
		orders:      orders,
		timeline:    timeline,
		defaultPage: opts.DefaultPageSize,
		maxPage:     opts.MaxPageSize,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// GetOrderByID возвращает любой заказ персоналу.
func (s *Service) GetOrderByID(ctx context.Context, principal domain.Principal, orderID int64) (detail OrderDetail, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpGetOrderByID, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpGetOrderByID); err != nil {
		return OrderDetail{}, err
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	return s.detail(ctx, order)
}

// GetCustomerOrderDetail возвращает клиенту его собственный заказ.
func (s *Service) GetCustomerOrderDetail(ctx context.Context, principal domain.Principal, orderID int64) (detail OrderDetail, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpGetOwnOrderDetail, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpGetOwnOrderDetail); err != nil {
		return OrderDetail{}, err
	}
	order, err := s.owned(ctx, principal, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	return s.detail(ctx, order)
}

// ListOrderHistory возвращает все заказы клиента от новых к старым.
func (s *Service) ListOrderHistory(ctx context.Context, principal domain.Principal) (orders []domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpListOrderHistory, principal, 0, started, err) }()

	if err := policy.Authorize(principal, policy.OpListOrderHistory); err != nil {
		return nil, err
	}
	customerID := principal.ID
	orders, _, err = s.orders.List(ctx, domain.OrderFilter{CustomerID: &customerID}, domain.OrderPage{})
	if err != nil {
		return nil, fmt.Errorf("list order history: %w", err)
	}
	return orders, nil
}

// ListOrdersInProgress возвращает заказы клиента, которые ещё не выданы и не отменены.
func (s *Service) ListOrdersInProgress(ctx context.Context, principal domain.Principal) (orders []domain.Order, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpListOrdersInProgress, principal, 0, started, err) }()

	if err := policy.Authorize(principal, policy.OpListOrdersInProgress); err != nil {
		return nil, err
	}
	customerID := principal.ID
	filter := domain.OrderFilter{
		CustomerID: &customerID,
		Statuses: []domain.OrderStatus{
			domain.OrderStatusCreated,
			domain.OrderStatusInPreparation,
			domain.OrderStatusReady,
		},
	}
	orders, _, err = s.orders.List(ctx, filter, domain.OrderPage{})
	if err != nil {
		return nil, fmt.Errorf("list orders in progress: %w", err)
	}
	return orders, nil
}

// CheckOrderStatus возвращает статус собственного заказа клиента.
func (s *Service) CheckOrderStatus(ctx context.Context, principal domain.Principal, orderID int64) (view StatusView, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpCheckOrderStatus, principal, orderID, started, err) }()

	if err := policy.Authorize(principal, policy.OpCheckOrderStatus); err != nil {
		return StatusView{}, err
	}
	order, err := s.owned(ctx, principal, orderID)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		OrderID:         order.ID,
		Status:          order.Status,
		StatusUpdatedAt: order.StatusUpdatedAt,
	}, nil
}

// ListAllOrders возвращает страницу всех заказов для персонала.
// limit <= 0 означает размер по умолчанию, слишком большой limit урезается.
func (s *Service) ListAllOrders(ctx context.Context, principal domain.Principal, offset, limit int) (page Page, err error) {
	started := time.Now()
	defer func() { s.finish(policy.OpListAllOrders, principal, 0, started, err) }()

	if err := policy.Authorize(principal, policy.OpListAllOrders); err != nil {
		return Page{}, err
	}
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = s.defaultPage
	case limit > s.maxPage:
		limit = s.maxPage
	}

	orders, total, err := s.orders.List(ctx, domain.OrderFilter{}, domain.OrderPage{Offset: offset, Limit: limit})
	if err != nil {
		return Page{}, fmt.Errorf("list all orders: %w", err)
	}
	return Page{Orders: orders, Total: total, Offset: offset, Limit: limit}, nil
}

// owned загружает заказ и проверяет владельца. Чужой заказ отличается от
// отсутствующего только внутренней ошибкой.
func (s *Service) owned(ctx context.Context, principal domain.Principal, orderID int64) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.OwnedBy(principal.ID) {
		return domain.Order{}, domain.ErrOrderNotOwned
	}
	return order, nil
}

func (s *Service) detail(ctx context.Context, order domain.Order) (OrderDetail, error) {
	detail := OrderDetail{Order: order}
	if s.timeline == nil {
		return detail, nil
	}
	events, err := s.timeline.List(ctx, order.ID)
	if err != nil {
		return OrderDetail{}, fmt.Errorf("load timeline: %w", err)
	}
	detail.Timeline = events
	return detail, nil
}

func (s *Service) finish(op policy.Operation, principal domain.Principal, orderID int64, started time.Time, err error) {
	kind := domain.KindOf(err)
	s.metrics.RecordOperation(string(op), string(kind), time.Since(started))
	if err == nil {
		return
	}

	entry := s.logger.WithFields(log.Fields{
		"operation":    op,
		"principal_id": principal.ID,
		"role":         principal.Role,
		"kind":         kind,
	}).WithError(err)
	if orderID != 0 {
		entry = entry.WithField("order_id", orderID)
	}
	if kind == domain.KindInternal {
		entry.Error("order query failed")
		return
	}
	entry.Warn("order query rejected")
}
