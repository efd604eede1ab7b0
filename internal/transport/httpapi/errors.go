package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/telemetry"
)

// errBadRequest возвращается, если тело или параметры запроса не разобрались.
var errBadRequest = errors.New("malformed request")

// orderNotFoundBody одинаков для отсутствующего и чужого заказа.
var orderNotFoundBody = errorResponse{Error: "order_not_found"}

// errorStatus сопоставляет ошибку с HTTP-статусом и телом ответа.
func errorStatus(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()}
	case errors.Is(err, domain.ErrRoleDenied), errors.Is(err, domain.ErrPrincipalInactive):
		return http.StatusForbidden, errorResponse{Error: "forbidden"}
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, orderNotFoundBody
	}

	kind := domain.KindOf(err)
	body := errorResponse{Error: snakeCase(string(kind)), Message: err.Error()}
	switch kind {
	case domain.KindInvalidQuantity, domain.KindQuantityLimitExceeded, domain.KindInvalidChannel:
		return http.StatusBadRequest, body
	case domain.KindLineNotFound:
		return http.StatusNotFound, body
	case domain.KindProductUnavailable, domain.KindEmptyCart, domain.KindEmptyOrderLines,
		domain.KindInvalidStatusTransition, domain.KindOrderAlreadyFinalized, domain.KindOrderNotMutable:
		return http.StatusUnprocessableEntity, body
	case domain.KindConcurrentModification:
		return http.StatusConflict, body
	case domain.KindCatalogUnavailable:
		return http.StatusServiceUnavailable, errorResponse{Error: "catalog_unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal"}
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"trace_id":   telemetry.TraceID(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// snakeCase переводит имя категории ("OrderNotMutable") в код ответа ("order_not_mutable").
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
