package domain

import "time"

// Channel обозначает канал, через который заказ попал в систему.
type Channel string

const (
	// ChannelCartCheckout: клиент оформил корзину.
	ChannelCartCheckout Channel = "cart-checkout"
	// ChannelInPerson: персонал принял заказ в зале.
	ChannelInPerson Channel = "in-person"
	// ChannelTakeaway: персонал принял заказ навынос.
	ChannelTakeaway Channel = "takeaway"
)

// Valid проверяет, что канал относится к поддерживаемым значениям.
func (c Channel) Valid() bool {
	switch c {
	case ChannelCartCheckout, ChannelInPerson, ChannelTakeaway:
		return true
	default:
		return false
	}
}

// WalkIn сообщает, относится ли канал к тем, в которых заказ создаётся персоналом без корзины.
func (c Channel) WalkIn() bool {
	return c == ChannelInPerson || c == ChannelTakeaway
}

// OrderLine представляет одну позицию заказа.
type OrderLine struct {
	// ID позиции, по которому персонал удаляет её из заказа.
	ID        int64
	ProductID int64
	Qty       int32
	// UnitPriceMinor хранит цену за единицу, замороженная при создании позиции.
	UnitPriceMinor int64
	CreatedAt      time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID int64
	// CustomerID равен nil для заказов, принятых персоналом без зарегистрированного клиента.
	CustomerID      *int64
	CreatedBy       Actor
	Channel         Channel
	Status          OrderStatus
	Lines           []OrderLine
	TotalMinor      int64
	Version         int64
	CreatedAt       time.Time
	StatusUpdatedAt time.Time
	UpdatedAt       time.Time
}

// OwnedBy сообщает, принадлежит ли заказ клиенту customerID.
func (o Order) OwnedBy(customerID int64) bool {
	return o.CustomerID != nil && *o.CustomerID == customerID
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	clone := o
	if o.CustomerID != nil {
		id := *o.CustomerID
		clone.CustomerID = &id
	}
	if o.Lines != nil {
		clone.Lines = make([]OrderLine, len(o.Lines))
		copy(clone.Lines, o.Lines)
	}
	return clone
}

// ComputeTotal пересчитывает сумму по текущим позициям.
func (o Order) ComputeTotal() int64 {
	var total int64
	for _, line := range o.Lines {
		total += int64(line.Qty) * line.UnitPriceMinor
	}
	return total
}

// LineByID возвращает индекс позиции с указанным идентификатором.
func (o Order) LineByID(lineID int64) (int, bool) {
	for i, line := range o.Lines {
		if line.ID == lineID {
			return i, true
		}
	}
	return -1, false
}

// LineByProduct возвращает индекс позиции с указанным товаром.
func (o Order) LineByProduct(productID int64) (int, bool) {
	for i, line := range o.Lines {
		if line.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// AddProduct добавляет товар в заказ. Существующая позиция сохраняет замороженную цену,
// новая позиция получает цену из каталога на момент добавления.
func (o *Order) AddProduct(lineID int64, product Product, qty, limit int32, now time.Time) error {
	if !o.Status.LinesMutable() {
		return ErrOrderNotMutable
	}
	if err := ValidateQuantity(qty, limit); err != nil {
		return err
	}

	if idx, ok := o.LineByProduct(product.ID); ok {
		merged, err := mergeQuantity(o.Lines[idx].Qty, qty, limit)
		if err != nil {
			return err
		}
		o.Lines[idx].Qty = merged
	} else {
		o.Lines = append(o.Lines, OrderLine{
			ID:             lineID,
			ProductID:      product.ID,
			Qty:            qty,
			UnitPriceMinor: product.PriceMinor,
			CreatedAt:      now,
		})
	}

	o.TotalMinor = o.ComputeTotal()
	o.UpdatedAt = now
	return nil
}

// RemoveLine удаляет позицию. Последнюю позицию живого заказа удалить нельзя:
// для этого есть удаление заказа или отмена.
func (o *Order) RemoveLine(lineID int64, now time.Time) error {
	if !o.Status.LinesMutable() {
		return ErrOrderNotMutable
	}
	idx, ok := o.LineByID(lineID)
	if !ok {
		return ErrLineNotFound
	}
	if len(o.Lines) == 1 {
		return ErrEmptyOrderLines
	}
	o.Lines = append(o.Lines[:idx], o.Lines[idx+1:]...)
	o.TotalMinor = o.ComputeTotal()
	o.UpdatedAt = now
	return nil
}

// TransitionTo применяет переход статуса. changed=false означает no-op.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) (changed bool, err error) {
	changed, err = CheckTransition(o.Status, to)
	if err != nil || !changed {
		return false, err
	}
	if to != OrderStatusCancelled && len(o.Lines) == 0 {
		return false, ErrEmptyOrderLines
	}
	o.Status = to
	o.StatusUpdatedAt = now
	o.UpdatedAt = now
	return true, nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if !o.Channel.Valid() {
		errs = append(errs, ErrInvalidChannel)
	}
	if len(o.Lines) == 0 && o.Status != OrderStatusCancelled {
		errs = append(errs, ErrEmptyOrderLines)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	seen := make(map[int64]struct{}, len(o.Lines))
	for _, line := range o.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if _, dup := seen[line.ProductID]; dup {
			errs = append(errs, ErrDuplicateProductLine)
		}
		seen[line.ProductID] = struct{}{}
	}
	if o.ComputeTotal() != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
