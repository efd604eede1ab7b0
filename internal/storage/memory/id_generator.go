package memory

import (
	"context"
	"sync/atomic"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// idGenerator выдаёт возрастающие идентификаторы в пределах процесса.
type idGenerator struct {
	orders atomic.Int64
	lines  atomic.Int64
}

// NewIDGenerator создаёт генератор идентификаторов, начинающий с 1.
func NewIDGenerator() domain.IDGenerator {
	return &idGenerator{}
}

func (g *idGenerator) NextOrderID(context.Context) (int64, error) {
	return g.orders.Add(1), nil
}

func (g *idGenerator) NextLineID(context.Context) (int64, error) {
	return g.lines.Add(1), nil
}

var _ domain.IDGenerator = (*idGenerator)(nil)
