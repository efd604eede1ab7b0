package domain

import "context"

// CartRepository хранит открытые корзины, по одной на клиента.
type CartRepository interface {
	// Get возвращает корзину клиента или ErrCartNotFound.
	Get(ctx context.Context, customerID int64) (Cart, error)
	// Save создаёт корзину (Version == 0) или обновляет её с учётом optimistic locking.
	// Возвращает сохранённую корзину с новой версией.
	Save(ctx context.Context, cart Cart) (Cart, error)
	// Delete удаляет корзину ожидаемой версии. Отсутствие корзины не является ошибкой.
	Delete(ctx context.Context, customerID, version int64) error
}

// OrderPage задаёт окно постраничной выборки.
type OrderPage struct {
	Offset int
	Limit  int
}

// OrderFilter сужает выборку заказов. Нулевое значение не фильтрует.
type OrderFilter struct {
	CustomerID *int64
	Statuses   []OrderStatus
}

// Matches сообщает, проходит ли заказ фильтр.
func (f OrderFilter) Matches(o Order) bool {
	if f.CustomerID != nil && !o.OwnedBy(*f.CustomerID) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if o.Status == status {
			return true
		}
	}
	return false
}

// OrderRepository описывает требования к хранилищу заказов.
// Списки упорядочены по CreatedAt DESC, ID DESC.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id int64) (Order, error)
	// List возвращает заказы, прошедшие фильтр, в пределах страницы и общее число подходящих заказов.
	List(ctx context.Context, filter OrderFilter, page OrderPage) ([]Order, int, error)
	// Save применяет обновления к заказу с учётом optimistic locking и увеличивает версию.
	Save(ctx context.Context, order Order) (Order, error)
	// Delete удаляет заказ ожидаемой версии.
	Delete(ctx context.Context, id, version int64) error
}

// CheckoutRepository фиксирует оформление корзины: заказ появляется, корзина исчезает
// в одной операции. Если корзина изменилась, ничего не сохраняется.
type CheckoutRepository interface {
	CommitCheckout(ctx context.Context, order Order, cart Cart) error
}
