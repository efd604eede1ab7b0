package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

const defaultPullLimit = 100

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg      domain.OutboxMessage
	state    outboxState
	attempts int
	queuedAt time.Time
}

// OutboxRepository: журнал outbox в памяти. Записи хранятся в порядке
// постановки, поэтому pending-сообщения выдаются FIFO без сортировки.
type OutboxRepository struct {
	mu      sync.RWMutex
	log     []*outboxEntry
	byID    map[string]*outboxEntry
	pending int
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID: make(map[string]*outboxEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит сообщение в очередь; пустой ID заменяется UUID.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = slices.Clone(msg.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &outboxEntry{msg: msg, queuedAt: r.now()}
	r.log = append(r.log, entry)
	r.byID[msg.ID] = entry
	r.pending++
	return msg, nil
}

// PullPending отдаёт до limit pending-сообщений в порядке постановки.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectPending(limit), nil
}

// AllPending возвращает все неотправленные сообщения.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectPending(-1)
}

func (r *OutboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OutboxStats{PendingCount: r.pending}
	if i := slices.IndexFunc(r.log, isPending); i >= 0 {
		stats.OldestPendingAt = r.log[i].queuedAt
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.finish(id, outboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.finish(id, outboxFailed)
}

func (r *OutboxRepository) finish(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	if entry.state == outboxPending {
		r.pending--
	}
	entry.state = state
	entry.attempts++
	return nil
}

// collectPending: limit<0 без ограничения. Вызывается под mu.
func (r *OutboxRepository) collectPending(limit int) []domain.OutboxMessage {
	size := r.pending
	if limit >= 0 {
		size = min(size, limit)
	}
	out := make([]domain.OutboxMessage, 0, size)
	for _, entry := range r.log {
		if limit >= 0 && len(out) == limit {
			break
		}
		if isPending(entry) {
			out = append(out, entry.msg)
		}
	}
	return out
}

func isPending(e *outboxEntry) bool { return e.state == outboxPending }

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
