package domain

import (
	"math"
	"time"
)

// CartLine описывает строку корзины. Цена фиксируется в момент последней установки строки.
type CartLine struct {
	ID             int64
	ProductID      int64
	Qty            int32
	UnitPriceMinor int64
	UpdatedAt      time.Time
}

// Cart описывает изменяемую корзину клиента. У клиента не больше одной открытой корзины.
type Cart struct {
	CustomerID     int64
	Lines          []CartLine
	Version        int64
	CreatedAt      time.Time
	LastModifiedAt time.Time
}

// NewCart создаёт пустую корзину; в хранилище она появляется при первом добавлении товара.
func NewCart(customerID int64, now time.Time) Cart {
	return Cart{
		CustomerID:     customerID,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
}

// TotalMinor всегда пересчитывает сумму по текущим строкам.
func (c Cart) TotalMinor() int64 {
	var total int64
	for _, line := range c.Lines {
		total += int64(line.Qty) * line.UnitPriceMinor
	}
	return total
}

// IsEmpty сообщает, что в корзине нет строк.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Clone возвращает глубокую копию, безопасную для передачи за пределы блокировки.
func (c Cart) Clone() Cart {
	clone := c
	if c.Lines != nil {
		clone.Lines = make([]CartLine, len(c.Lines))
		copy(clone.Lines, c.Lines)
	}
	return clone
}

// LineByID возвращает индекс строки с указанным идентификатором.
func (c Cart) LineByID(lineID int64) (int, bool) {
	for i, line := range c.Lines {
		if line.ID == lineID {
			return i, true
		}
	}
	return -1, false
}

// LineByProduct возвращает индекс строки с указанным товаром.
func (c Cart) LineByProduct(productID int64) (int, bool) {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// AddProduct добавляет количество к существующей строке товара или добавляет новую строку с lineID.
// Строка получает актуальную цену товара.
func (c *Cart) AddProduct(lineID int64, product Product, qty, limit int32, now time.Time) error {
	if err := ValidateQuantity(qty, limit); err != nil {
		return err
	}

	if idx, ok := c.LineByProduct(product.ID); ok {
		merged, err := mergeQuantity(c.Lines[idx].Qty, qty, limit)
		if err != nil {
			return err
		}
		c.Lines[idx].Qty = merged
		c.Lines[idx].UnitPriceMinor = product.PriceMinor
		c.Lines[idx].UpdatedAt = now
		c.touch(now)
		return nil
	}

	c.Lines = append(c.Lines, CartLine{
		ID:             lineID,
		ProductID:      product.ID,
		Qty:            qty,
		UnitPriceMinor: product.PriceMinor,
		UpdatedAt:      now,
	})
	c.touch(now)
	return nil
}

// SetQuantity заменяет количество строки и обновляет её цену.
func (c *Cart) SetQuantity(lineID int64, qty, limit int32, priceMinor int64, now time.Time) error {
	if err := ValidateQuantity(qty, limit); err != nil {
		return err
	}
	idx, ok := c.LineByID(lineID)
	if !ok {
		return ErrLineNotFound
	}
	c.Lines[idx].Qty = qty
	c.Lines[idx].UnitPriceMinor = priceMinor
	c.Lines[idx].UpdatedAt = now
	c.touch(now)
	return nil
}

// RemoveLine удаляет строку целиком независимо от количества.
func (c *Cart) RemoveLine(lineID int64, now time.Time) error {
	idx, ok := c.LineByID(lineID)
	if !ok {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
	c.touch(now)
	return nil
}

// Clear очищает корзину. Повторная очистка пустой корзины допустима.
func (c *Cart) Clear(now time.Time) {
	c.Lines = nil
	c.touch(now)
}

// touch поддерживает монотонность LastModifiedAt даже при откате системных часов.
func (c *Cart) touch(now time.Time) {
	if now.After(c.LastModifiedAt) {
		c.LastModifiedAt = now
		return
	}
	c.LastModifiedAt = c.LastModifiedAt.Add(time.Microsecond)
}

// ValidateQuantity проверяет количество строки. limit <= 0 отключает потолок.
func ValidateQuantity(qty, limit int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if limit > 0 && qty > limit {
		return ErrQuantityLimitExceeded
	}
	return nil
}

func mergeQuantity(current, add, limit int32) (int32, error) {
	sum := int64(current) + int64(add)
	if limit > 0 && sum > int64(limit) {
		return 0, ErrQuantityLimitExceeded
	}
	if sum > math.MaxInt32 {
		return 0, ErrQuantityLimitExceeded
	}
	return int32(sum), nil
}
