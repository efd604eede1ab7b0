package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/service/cart"
	"github.com/vladislavdragonenkov/pedidos/internal/service/query"
)

// --- Запросы ---

type addProductRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int32 `json:"quantity"`
}

type walkInLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

type walkInOrderRequest struct {
	Channel    string              `json:"channel"`
	CustomerID *int64              `json:"customer_id,omitempty"`
	Lines      []walkInLineRequest `json:"lines"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Ответы ---

type cartLineResponse struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	Quantity       int32     `json:"quantity"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type cartResponse struct {
	CustomerID     int64              `json:"customer_id"`
	Lines          []cartLineResponse `json:"lines"`
	TotalMinor     int64              `json:"total_minor"`
	LastModifiedAt *time.Time         `json:"last_modified_at,omitempty"`
}

type actorResponse struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

type orderLineResponse struct {
	ID             int64 `json:"id"`
	ProductID      int64 `json:"product_id"`
	Quantity       int32 `json:"quantity"`
	UnitPriceMinor int64 `json:"unit_price_minor"`
	SubtotalMinor  int64 `json:"subtotal_minor"`
}

type orderResponse struct {
	ID              int64               `json:"id"`
	CustomerID      *int64              `json:"customer_id"`
	CreatedBy       actorResponse       `json:"created_by"`
	Channel         string              `json:"channel"`
	Status          string              `json:"status"`
	Lines           []orderLineResponse `json:"lines"`
	TotalMinor      int64               `json:"total_minor"`
	CreatedAt       time.Time           `json:"created_at"`
	StatusUpdatedAt time.Time           `json:"status_updated_at"`
}

type timelineEventResponse struct {
	Type     string        `json:"type"`
	Reason   string        `json:"reason,omitempty"`
	Actor    actorResponse `json:"actor"`
	Occurred time.Time     `json:"occurred"`
}

// orderDetailResponse дополняет заказ историей изменений.
type orderDetailResponse struct {
	orderResponse
	Timeline []timelineEventResponse `json:"timeline"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

type orderPageResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

type orderStatusResponse struct {
	OrderID         int64     `json:"order_id"`
	Status          string    `json:"status"`
	StatusUpdatedAt time.Time `json:"status_updated_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toCartResponse(view cart.View) cartResponse {
	resp := cartResponse{
		CustomerID: view.Cart.CustomerID,
		Lines:      make([]cartLineResponse, 0, len(view.Cart.Lines)),
		TotalMinor: view.TotalMinor,
	}
	if !view.Cart.LastModifiedAt.IsZero() {
		at := view.Cart.LastModifiedAt
		resp.LastModifiedAt = &at
	}
	for _, line := range view.Cart.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Quantity:       line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			UpdatedAt:      line.UpdatedAt,
		})
	}
	return resp
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		CreatedBy:       actorResponse{ID: order.CreatedBy.ID, Role: string(order.CreatedBy.Role)},
		Channel:         string(order.Channel),
		Status:          string(order.Status),
		Lines:           make([]orderLineResponse, 0, len(order.Lines)),
		TotalMinor:      order.TotalMinor,
		CreatedAt:       order.CreatedAt,
		StatusUpdatedAt: order.StatusUpdatedAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:             line.ID,
			ProductID:      line.ProductID,
			Quantity:       line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  int64(line.Qty) * line.UnitPriceMinor,
		})
	}
	return resp
}

func toOrderDetailResponse(detail query.OrderDetail) orderDetailResponse {
	resp := orderDetailResponse{
		orderResponse: toOrderResponse(detail.Order),
		Timeline:      make([]timelineEventResponse, 0, len(detail.Timeline)),
	}
	for _, event := range detail.Timeline {
		resp.Timeline = append(resp.Timeline, timelineEventResponse{
			Type:     string(event.Type),
			Reason:   event.Reason,
			Actor:    actorResponse{ID: event.Actor.ID, Role: string(event.Actor.Role)},
			Occurred: event.Occurred,
		})
	}
	return resp
}

func toOrderList(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	return out
}
