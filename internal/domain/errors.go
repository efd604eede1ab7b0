package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity возвращается, если количество не является положительным целым.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrQuantityLimitExceeded: количество в строке превышает настроенный потолок.
	ErrQuantityLimitExceeded = errors.New("line quantity limit exceeded")
	// ErrProductUnavailable: товар не найден в каталоге или недоступен для покупки.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrLineNotFound возвращается, если строка корзины или заказа не найдена.
	ErrLineNotFound = errors.New("line not found")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrEmptyOrderLines: заказ без позиций.
	ErrEmptyOrderLines = errors.New("order must contain at least one line")
	// ErrInvalidStatusTransition: переход отсутствует в таблице переходов.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrOrderAlreadyFinalized: заказ уже в терминальном статусе.
	ErrOrderAlreadyFinalized = errors.New("order already finalized")
	// ErrOrderNotMutable: позиции и удаление доступны только до статуса ready.
	ErrOrderNotMutable = errors.New("order is not mutable in its current status")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrForbidden сигнализирует, что у принципала нет доступа к операции или ресурсу.
	ErrForbidden = errors.New("forbidden")
	// ErrCatalogUnavailable: каталог не ответил вовремя или недоступен.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrConcurrentModification сигнализирует, что оптимистическая перепроверка не прошла и запрос можно повторить.
	ErrConcurrentModification = errors.New("concurrent modification, retry the request")
	// ErrInvalidChannel: канал заказа не подходит для операции.
	ErrInvalidChannel = errors.New("invalid order channel")

	// ErrRoleDenied: роль принципала не допускает операцию.
	ErrRoleDenied = fmt.Errorf("operation not permitted for role: %w", ErrForbidden)
	// ErrPrincipalInactive: принципал отключён и не может выполнять операции.
	ErrPrincipalInactive = fmt.Errorf("principal is inactive: %w", ErrForbidden)
	// ErrOrderNotOwned: заказ принадлежит другому клиенту.
	ErrOrderNotOwned = fmt.Errorf("order belongs to another customer: %w", ErrForbidden)

	// ErrCartNotFound возвращается, если у клиента нет открытой корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartVersionConflict сигнализирует о конфликте версий корзины при сохранении.
	ErrCartVersionConflict = errors.New("cart version conflict")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrAmountMismatch сигнализирует, что сумма заказа не совпадает с суммой позиций.
	ErrAmountMismatch = errors.New("order total does not match lines sum")
	// ErrDuplicateProductLine: две позиции с одним товаром.
	ErrDuplicateProductLine = errors.New("duplicate product line")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий корзины или заказа.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCartVersionConflict)
}

// ErrorKind задаёт имя категории ошибки, видимое в логах, метриках и ответах API.
type ErrorKind string

const (
	KindNone                    ErrorKind = ""
	KindInvalidQuantity         ErrorKind = "InvalidQuantity"
	KindQuantityLimitExceeded   ErrorKind = "QuantityLimitExceeded"
	KindProductUnavailable      ErrorKind = "ProductUnavailable"
	KindLineNotFound            ErrorKind = "LineNotFound"
	KindEmptyCart               ErrorKind = "EmptyCart"
	KindEmptyOrderLines         ErrorKind = "EmptyOrderLines"
	KindInvalidStatusTransition ErrorKind = "InvalidStatusTransition"
	KindOrderAlreadyFinalized   ErrorKind = "OrderAlreadyFinalized"
	KindOrderNotMutable         ErrorKind = "OrderNotMutable"
	KindOrderNotFound           ErrorKind = "OrderNotFound"
	KindForbidden               ErrorKind = "Forbidden"
	KindCatalogUnavailable      ErrorKind = "CatalogUnavailable"
	KindConcurrentModification  ErrorKind = "ConcurrentModification"
	KindInvalidChannel          ErrorKind = "InvalidChannel"
	KindInternal                ErrorKind = "Internal"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidQuantity, KindInvalidQuantity},
	{ErrQuantityLimitExceeded, KindQuantityLimitExceeded},
	{ErrProductUnavailable, KindProductUnavailable},
	{ErrLineNotFound, KindLineNotFound},
	{ErrEmptyCart, KindEmptyCart},
	{ErrEmptyOrderLines, KindEmptyOrderLines},
	{ErrInvalidStatusTransition, KindInvalidStatusTransition},
	{ErrOrderAlreadyFinalized, KindOrderAlreadyFinalized},
	{ErrOrderNotMutable, KindOrderNotMutable},
	{ErrOrderNotFound, KindOrderNotFound},
	{ErrForbidden, KindForbidden},
	{ErrCatalogUnavailable, KindCatalogUnavailable},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrOrderVersionConflict, KindConcurrentModification},
	{ErrCartVersionConflict, KindConcurrentModification},
	{ErrInvalidChannel, KindInvalidChannel},
}

// KindOf возвращает категорию ошибки. Для nil возвращает KindNone, для неизвестных ошибок KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// Retryable сообщает, что ошибка временная и повтор того же запроса может пройти.
// Такие исходы не фиксируются за ключом идемпотентности.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindCatalogUnavailable, KindConcurrentModification, KindInternal:
		return true
	default:
		return false
	}
}
