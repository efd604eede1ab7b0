// Package httpapi реализует HTTP-транспорт сервиса: маршруты chi, извлечение принципала,
// JSON-представления и сопоставление доменных ошибок с HTTP-статусами.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/service/cart"
	"github.com/vladislavdragonenkov/pedidos/internal/service/order"
	"github.com/vladislavdragonenkov/pedidos/internal/service/query"
	"github.com/vladislavdragonenkov/pedidos/internal/telemetry"
)

// CartEngine описывает операции корзины, доступные транспорту.
type CartEngine interface {
	AddProduct(ctx context.Context, principal domain.Principal, productID int64, qty int32) (cart.View, error)
	RemoveProduct(ctx context.Context, principal domain.Principal, lineID int64) (cart.View, error)
	UpdateQuantity(ctx context.Context, principal domain.Principal, lineID int64, qty int32) (cart.View, error)
	Clear(ctx context.Context, principal domain.Principal) (cart.View, error)
	GetCart(ctx context.Context, principal domain.Principal) (cart.View, error)
}

// OrderEngine описывает операции изменения заказов.
type OrderEngine interface {
	CreateCustomerOrder(ctx context.Context, principal domain.Principal) (domain.Order, error)
	CreateWalkInOrder(ctx context.Context, principal domain.Principal, req order.WalkInRequest) (domain.Order, error)
	AddProductToOrder(ctx context.Context, principal domain.Principal, orderID, productID int64, qty int32) (domain.Order, error)
	RemoveProductFromOrder(ctx context.Context, principal domain.Principal, orderID, lineID int64) (domain.Order, error)
	DeleteOrder(ctx context.Context, principal domain.Principal, orderID int64) error
	UpdateOrderStatus(ctx context.Context, principal domain.Principal, orderID int64, target domain.OrderStatus) (domain.Order, error)
}

// OrderQueries описывает чтение заказов.
type OrderQueries interface {
	GetOrderByID(ctx context.Context, principal domain.Principal, orderID int64) (query.OrderDetail, error)
	GetCustomerOrderDetail(ctx context.Context, principal domain.Principal, orderID int64) (query.OrderDetail, error)
	ListOrderHistory(ctx context.Context, principal domain.Principal) ([]domain.Order, error)
	ListOrdersInProgress(ctx context.Context, principal domain.Principal) ([]domain.Order, error)
	CheckOrderStatus(ctx context.Context, principal domain.Principal, orderID int64) (query.StatusView, error)
	ListAllOrders(ctx context.Context, principal domain.Principal, offset, limit int) (query.Page, error)
}

// Options задаёт параметры HTTP API.
type Options struct {
	Logger         *log.Entry
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// Option настраивает API.
type Option func(*Options)

// WithLogger задаёт логгер API.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key для создания заказов.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(o *Options) {
		o.Idempotency = repo
		o.IdempotencyTTL = ttl
	}
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// API связывает движки с HTTP-маршрутами.
type API struct {
	carts   CartEngine
	orders  OrderEngine
	queries OrderQueries

	idem    domain.IdempotencyRepository
	idemTTL time.Duration
	now     func() time.Time
	logger  *log.Entry
}

// New создаёт API поверх движков корзины, заказов и запросов.
func New(carts CartEngine, orders OrderEngine, queries OrderQueries, options ...Option) *API {
	opts := Options{
		IdempotencyTTL: domain.DefaultIdempotencyTTL,
		Now:            func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = domain.DefaultIdempotencyTTL
	}

	return &API{
		carts:   carts,
		orders:  orders,
		queries: queries,
		idem:    opts.Idempotency,
		idemTTL: opts.IdempotencyTTL,
		now:     opts.Now,
		logger:  logger,
	}
}

// Routes возвращает обработчик со всеми маршрутами /api/v1.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(principalMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", a.handle(a.getCart))
			r.Delete("/", a.handle(a.clearCart))
			r.Post("/product", a.handle(a.addCartProduct))
			r.Delete("/product/{lineID:[0-9]+}", a.handle(a.removeCartProduct))
			r.Patch("/product/{lineID:[0-9]+}", a.handle(a.updateCartQuantity))
			r.Post("/checkout", a.idempotent("cart.checkout", a.checkout))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/create-customer-order", a.idempotent("orders.create_walk_in", a.createWalkInOrder))
			r.Get("/history", a.handle(a.listOrderHistory))
			r.Get("/in-progress", a.handle(a.listOrdersInProgress))
			r.Get("/all", a.handle(a.listAllOrders))
			r.Get("/status/{orderID:[0-9]+}", a.handle(a.checkOrderStatus))
			r.Get("/{orderID:[0-9]+}", a.handle(a.getOrderByID))
			r.Get("/{orderID:[0-9]+}/detail", a.handle(a.getOrderDetail))
			r.Delete("/{orderID:[0-9]+}", a.handle(a.deleteOrder))
			r.Post("/{orderID:[0-9]+}/product", a.handle(a.addOrderProduct))
			r.Delete("/{orderID:[0-9]+}/product/{lineID:[0-9]+}", a.handle(a.removeOrderProduct))
			r.Patch("/{orderID:[0-9]+}/status", a.handle(a.updateOrderStatus))
		})
	})

	return otelhttp.NewHandler(r, "pedidos.http")
}

// handlerFunc обрабатывает запрос уже известного принципала. Возвращает статус и тело ответа.
type handlerFunc func(r *http.Request, principal domain.Principal) (int, any, error)

func (a *API) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := principalFrom(r.Context())
		status, body, err := fn(r, principal)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, status, body)
	}
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		a.logger.WithFields(log.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"trace_id":    telemetry.TraceID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
		}).Debug("http request")
	})
}
