// Package lock сериализует мутации одной корзины или одного заказа.
package lock

import (
	"context"
	"sync"
)

// Keyed хранит мьютексы по ключу. Запись для ключа живёт, пока есть
// держатель или ожидающий, затем удаляется.
type Keyed struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyed создаёт пустой набор блокировок.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[int64]*entry)}
}

// Lock захватывает блокировку key. Ожидание прерывается отменой ctx,
// в этом случае блокировка не захвачена и возвращается ctx.Err().
func (k *Keyed) Lock(ctx context.Context, key int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *Keyed) release(key int64, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len возвращает число ключей с держателем или ожидающими.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Registry объединяет блокировки корзин и заказов.
// Порядок захвата: сначала клиент (корзина), затем заказ.
type Registry struct {
	Carts  *Keyed
	Orders *Keyed
}

// NewRegistry создаёт реестр блокировок.
func NewRegistry() *Registry {
	return &Registry{
		Carts:  NewKeyed(),
		Orders: NewKeyed(),
	}
}
