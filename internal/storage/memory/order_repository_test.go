package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/storage/memory"
)

func newOrder(id int64, customerID int64, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:         id,
		CustomerID: &customerID,
		CreatedBy:  domain.Actor{ID: customerID, Role: domain.RoleCustomer},
		Channel:    domain.ChannelCartCheckout,
		Status:     domain.OrderStatusCreated,
		TotalMinor: 500,
		Lines: []domain.OrderLine{
			{ID: id * 10, ProductID: 1, Qty: 5, UnitPriceMinor: 100, CreatedAt: createdAt},
		},
		CreatedAt:       createdAt,
		StatusUpdatedAt: createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder(1, 10, time.Now().UTC())

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected duplicate create to conflict, got %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %d, got %d", order.ID, stored.ID)
	}

	// Копия из хранилища не разделяет позиции с сохранённой версией.
	stored.Lines[0].Qty = 99
	again, _ := repo.Get(ctx, order.ID)
	if again.Lines[0].Qty != 5 {
		t.Fatalf("stored order mutated through returned copy")
	}

	if _, err := repo.Get(ctx, 404); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Now().UTC()

	for i := int64(1); i <= 5; i++ {
		customer := int64(10)
		if i%2 == 0 {
			customer = 20
		}
		order := newOrder(i, customer, base.Add(time.Duration(i)*time.Minute))
		if i == 5 {
			order.Status = domain.OrderStatusCompleted
		}
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	// Одинаковое время создания: порядок по ID DESC.
	tie := newOrder(6, 10, base.Add(5*time.Minute))
	if err := repo.Create(ctx, tie); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	all, total, err := repo.List(ctx, domain.OrderFilter{}, domain.OrderPage{Offset: 0, Limit: 3})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 6 || len(all) != 3 {
		t.Fatalf("expected total 6 and page of 3, got total=%d len=%d", total, len(all))
	}
	if all[0].ID != 6 || all[1].ID != 5 || all[2].ID != 4 {
		t.Fatalf("unexpected order: %d %d %d", all[0].ID, all[1].ID, all[2].ID)
	}

	tail, _, _ := repo.List(ctx, domain.OrderFilter{}, domain.OrderPage{Offset: 5, Limit: 3})
	if len(tail) != 1 || tail[0].ID != 1 {
		t.Fatalf("unexpected tail page: %+v", tail)
	}

	customer := int64(10)
	inProgress, total, _ := repo.List(ctx, domain.OrderFilter{
		CustomerID: &customer,
		Statuses:   []domain.OrderStatus{domain.OrderStatusCreated, domain.OrderStatusInPreparation, domain.OrderStatusReady},
	}, domain.OrderPage{})
	if total != 3 || len(inProgress) != 3 {
		t.Fatalf("expected 3 in-progress orders of customer 10, got %d", total)
	}
}

func TestOrderRepository_SaveAndDeleteUseVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder(1, 10, time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Status = domain.OrderStatusInPreparation
	saved, err := repo.Save(ctx, order)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}

	if _, err := repo.Save(ctx, order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected stale save to conflict, got %v", err)
	}
	if err := repo.Delete(ctx, order.ID, 0); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected stale delete to conflict, got %v", err)
	}
	if err := repo.Delete(ctx, order.ID, saved.Version); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.Delete(ctx, order.ID, saved.Version); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
