package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// Заголовки, которые проставляет шлюз аутентификации перед сервисом.
const (
	HeaderPrincipalID     = "X-Principal-ID"
	HeaderPrincipalRole   = "X-Principal-Role"
	HeaderPrincipalActive = "X-Principal-Active"
)

type principalKey struct{}

// principalMiddleware отклоняет запрос с 401, если шлюз не передал корректного принципала.
func principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := parsePrincipal(r.Header)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parsePrincipal разбирает заголовки принципала. Отсутствие X-Principal-Active
// означает активного принципала.
func parsePrincipal(h http.Header) (domain.Principal, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(h.Get(HeaderPrincipalID)), 10, 64)
	if err != nil || id <= 0 {
		return domain.Principal{}, false
	}
	role, ok := domain.ParseRole(h.Get(HeaderPrincipalRole))
	if !ok {
		return domain.Principal{}, false
	}

	active := true
	if raw := strings.TrimSpace(h.Get(HeaderPrincipalActive)); raw != "" {
		active, err = strconv.ParseBool(raw)
		if err != nil {
			return domain.Principal{}, false
		}
	}

	return domain.Principal{ID: id, Role: role, Active: active}, true
}

func principalFrom(ctx context.Context) domain.Principal {
	principal, _ := ctx.Value(principalKey{}).(domain.Principal)
	return principal
}
