package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const (
	// HeaderIdempotencyKey задаёт необязательный заголовок запросов создания заказа.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxRequestBodyBytes  = 1 << 20
	maxIdempotencyKeyLen = 128
)

// idempotent оборачивает создание заказа: повтор с тем же ключом и телом получает
// сохранённый ответ, ключ с другим телом или ещё обрабатываемый запрос получают 409.
// Временные ошибки освобождают ключ, сохраняются только окончательные исходы.
// Без заголовка запрос выполняется как обычно.
func (a *API) idempotent(method string, fn handlerFunc) http.HandlerFunc {
	plain := a.handle(fn)
	return func(w http.ResponseWriter, r *http.Request) {
		rawKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
		if a.idem == nil || rawKey == "" {
			plain(w, r)
			return
		}
		if len(rawKey) > maxIdempotencyKeyLen {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "idempotency key is too long"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: read body: %v", errBadRequest, err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		principal := principalFrom(r.Context())
		key := scopedIdempotencyKey(principal, rawKey)
		logger := a.logger.WithFields(log.Fields{"idempotency_key": rawKey, "principal_id": principal.ID})

		record, err := a.idem.CreateProcessing(r.Context(), key, requestHash(method, body), a.now().Add(a.idemTTL))
		if err != nil {
			a.replayIdempotent(w, r, logger, err, record)
			return
		}

		status, resp, runErr := fn(r, principal)
		// Ответ сохраняем даже если клиент уже отключился.
		ctx := context.WithoutCancel(r.Context())
		if runErr != nil && domain.Retryable(runErr) {
			// временный сбой не закрепляем за ключом: повтор выполнится заново
			if err := a.idem.Delete(ctx, key); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key")
			}
			a.writeError(w, r, runErr)
			return
		}
		if runErr != nil {
			status, errBody := errorStatus(runErr)
			payload, _ := json.Marshal(errBody)
			if err := a.idem.MarkFailed(ctx, key, payload, status); err != nil {
				logger.WithError(err).Warn("failed to store idempotency failure response")
			}
			a.writeError(w, r, runErr)
			return
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			logger.WithError(err).Warn("failed to encode idempotent response")
		} else if err := a.idem.MarkDone(ctx, key, payload, status); err != nil {
			logger.WithError(err).Warn("failed to store idempotent success response")
		}
		writeJSON(w, status, resp)
	}
}

func (a *API) replayIdempotent(w http.ResponseWriter, r *http.Request, logger *log.Entry, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "idempotency_key_reused",
			Message: "idempotency key is already used with different request payload",
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				logger.Warn("idempotency record has no stored response")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeJSON(w, http.StatusConflict, errorResponse{
				Error:   "idempotency_in_progress",
				Message: "request with the same idempotency key is already processing",
			})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
		}
	default:
		a.writeError(w, r, fmt.Errorf("create idempotency record: %w", createErr))
	}
}

// scopedIdempotencyKey разделяет пространства ключей разных принципалов.
func scopedIdempotencyKey(principal domain.Principal, key string) string {
	return strconv.FormatInt(principal.ID, 10) + ":" + key
}

func requestHash(method string, body []byte) string {
	payload := make([]byte, 0, len(method)+1+len(body))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, bytes.TrimSpace(body)...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
