package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/service/order"
)

// --- Корзина ---

func (a *API) getCart(r *http.Request, p domain.Principal) (int, any, error) {
	view, err := a.carts.GetCart(r.Context(), p)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toCartResponse(view), nil
}

func (a *API) clearCart(r *http.Request, p domain.Principal) (int, any, error) {
	view, err := a.carts.Clear(r.Context(), p)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toCartResponse(view), nil
}

func (a *API) addCartProduct(r *http.Request, p domain.Principal) (int, any, error) {
	var req addProductRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, nil, err
	}
	view, err := a.carts.AddProduct(r.Context(), p, req.ProductID, req.Quantity)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toCartResponse(view), nil
}

func (a *API) removeCartProduct(r *http.Request, p domain.Principal) (int, any, error) {
	lineID, err := pathID(r, "lineID")
	if err != nil {
		return 0, nil, err
	}
	view, err := a.carts.RemoveProduct(r.Context(), p, lineID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toCartResponse(view), nil
}

func (a *API) updateCartQuantity(r *http.Request, p domain.Principal) (int, any, error) {
	lineID, err := pathID(r, "lineID")
	if err != nil {
		return 0, nil, err
	}
	var req updateQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, nil, err
	}
	view, err := a.carts.UpdateQuantity(r.Context(), p, lineID, req.Quantity)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toCartResponse(view), nil
}

func (a *API) checkout(r *http.Request, p domain.Principal) (int, any, error) {
	created, err := a.orders.CreateCustomerOrder(r.Context(), p)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, toOrderResponse(created), nil
}

// --- Заказы ---

func (a *API) createWalkInOrder(r *http.Request, p domain.Principal) (int, any, error) {
	var req walkInOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, nil, err
	}

	lines := make([]order.LineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, order.LineRequest{ProductID: line.ProductID, Qty: line.Quantity})
	}
	created, err := a.orders.CreateWalkInOrder(r.Context(), p, order.WalkInRequest{
		Channel:    domain.Channel(req.Channel),
		CustomerID: req.CustomerID,
		Lines:      lines,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, toOrderResponse(created), nil
}

func (a *API) addOrderProduct(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	var req addProductRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, nil, err
	}
	updated, err := a.orders.AddProductToOrder(r.Context(), p, orderID, req.ProductID, req.Quantity)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toOrderResponse(updated), nil
}

func (a *API) removeOrderProduct(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		return 0, nil, err
	}
	updated, err := a.orders.RemoveProductFromOrder(r.Context(), p, orderID, lineID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toOrderResponse(updated), nil
}

func (a *API) deleteOrder(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	if err := a.orders.DeleteOrder(r.Context(), p, orderID); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

func (a *API) updateOrderStatus(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, nil, err
	}
	// неизвестный статус отклоняет движок, уже после проверки прав
	target, _ := domain.ParseOrderStatus(req.Status)
	updated, err := a.orders.UpdateOrderStatus(r.Context(), p, orderID, target)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toOrderResponse(updated), nil
}

func (a *API) getOrderByID(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	detail, err := a.queries.GetOrderByID(r.Context(), p, orderID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toOrderDetailResponse(detail), nil
}

func (a *API) getOrderDetail(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	detail, err := a.queries.GetCustomerOrderDetail(r.Context(), p, orderID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, toOrderDetailResponse(detail), nil
}

func (a *API) listOrderHistory(r *http.Request, p domain.Principal) (int, any, error) {
	orders, err := a.queries.ListOrderHistory(r.Context(), p)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, orderListResponse{Orders: toOrderList(orders)}, nil
}

func (a *API) listOrdersInProgress(r *http.Request, p domain.Principal) (int, any, error) {
	orders, err := a.queries.ListOrdersInProgress(r.Context(), p)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, orderListResponse{Orders: toOrderList(orders)}, nil
}

func (a *API) checkOrderStatus(r *http.Request, p domain.Principal) (int, any, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return 0, nil, err
	}
	view, err := a.queries.CheckOrderStatus(r.Context(), p, orderID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, orderStatusResponse{
		OrderID:         view.OrderID,
		Status:          string(view.Status),
		StatusUpdatedAt: view.StatusUpdatedAt,
	}, nil
}

func (a *API) listAllOrders(r *http.Request, p domain.Principal) (int, any, error) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, nil, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, nil, err
	}
	page, err := a.queries.ListAllOrders(r.Context(), p, offset, limit)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, orderPageResponse{
		Orders: toOrderList(page.Orders),
		Total:  page.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	}, nil
}

// --- Разбор запроса ---

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return v, nil
}
