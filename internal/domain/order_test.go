package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	customerID := int64(10)
	return domain.Order{
		ID:         1,
		CustomerID: &customerID,
		CreatedBy:  domain.Actor{ID: customerID, Role: domain.RoleCustomer},
		Channel:    domain.ChannelCartCheckout,
		Status:     domain.OrderStatusCreated,
		TotalMinor: 500,
		Lines: []domain.OrderLine{
			{
				ID:             100,
				ProductID:      7,
				Qty:            5,
				UnitPriceMinor: 100,
				CreatedAt:      now,
			},
		},
		CreatedAt:       now,
		StatusUpdatedAt: now,
		UpdatedAt:       now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "unknown channel",
			mut: func(o *domain.Order) {
				o.Channel = "drive-through"
			},
			want: domain.ErrInvalidChannel,
		},
		{
			name: "wrong total",
			mut: func(o *domain.Order) {
				o.TotalMinor = 499
			},
			want: domain.ErrAmountMismatch,
		},
		{
			name: "no lines",
			mut: func(o *domain.Order) {
				o.Lines = nil
				o.TotalMinor = 0
			},
			want: domain.ErrEmptyOrderLines,
		},
		{
			name: "zero quantity",
			mut: func(o *domain.Order) {
				o.Lines[0].Qty = 0
				o.TotalMinor = 0
			},
			want: domain.ErrInvalidQuantity,
		},
		{
			name: "duplicate product",
			mut: func(o *domain.Order) {
				dup := o.Lines[0]
				dup.ID = 101
				o.Lines = append(o.Lines, dup)
				o.TotalMinor = o.ComputeTotal()
			},
			want: domain.ErrDuplicateProductLine,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
			if !errors.Is(errors.Join(errs...), tc.want) {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderValidateInvariants_CancelledWithoutLines(t *testing.T) {
	order := makeOrder()
	order.Status = domain.OrderStatusCancelled
	order.Lines = nil
	order.TotalMinor = 0
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("cancelled order may be empty, got %v", errs)
	}
}

func TestOrderAddProduct(t *testing.T) {
	now := time.Now().UTC()

	t.Run("new line takes catalog price", func(t *testing.T) {
		order := makeOrder()
		err := order.AddProduct(101, domain.Product{ID: 8, PriceMinor: 250, Available: true}, 2, 99, now)
		if err != nil {
			t.Fatalf("AddProduct: %v", err)
		}
		if len(order.Lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(order.Lines))
		}
		if order.TotalMinor != 1000 {
			t.Fatalf("expected total 1000, got %d", order.TotalMinor)
		}
	})

	t.Run("existing line keeps frozen price", func(t *testing.T) {
		order := makeOrder()
		err := order.AddProduct(101, domain.Product{ID: 7, PriceMinor: 999, Available: true}, 1, 99, now)
		if err != nil {
			t.Fatalf("AddProduct: %v", err)
		}
		if len(order.Lines) != 1 || order.Lines[0].Qty != 6 {
			t.Fatalf("expected merged line qty 6, got %+v", order.Lines)
		}
		if order.Lines[0].UnitPriceMinor != 100 || order.TotalMinor != 600 {
			t.Fatalf("price must stay frozen, got %+v total=%d", order.Lines[0], order.TotalMinor)
		}
	})

	t.Run("ceiling", func(t *testing.T) {
		order := makeOrder()
		err := order.AddProduct(101, domain.Product{ID: 7, PriceMinor: 100, Available: true}, 5, 9, now)
		if !errors.Is(err, domain.ErrQuantityLimitExceeded) {
			t.Fatalf("expected ErrQuantityLimitExceeded, got %v", err)
		}
		if order.Lines[0].Qty != 5 || order.TotalMinor != 500 {
			t.Fatalf("order must stay unchanged, got %+v", order)
		}
	})

	t.Run("frozen after ready", func(t *testing.T) {
		order := makeOrder()
		order.Status = domain.OrderStatusReady
		err := order.AddProduct(101, domain.Product{ID: 8, PriceMinor: 1, Available: true}, 1, 99, now)
		if !errors.Is(err, domain.ErrOrderNotMutable) {
			t.Fatalf("expected ErrOrderNotMutable, got %v", err)
		}
	})
}

func TestOrderRemoveLine(t *testing.T) {
	now := time.Now().UTC()

	order := makeOrder()
	if err := order.AddProduct(101, domain.Product{ID: 8, PriceMinor: 250}, 2, 99, now); err != nil {
		t.Fatalf("AddProduct: %v", err)
	}

	if err := order.RemoveLine(404, now); !errors.Is(err, domain.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
	if err := order.RemoveLine(100, now); err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if order.TotalMinor != 500 {
		t.Fatalf("expected total 500, got %d", order.TotalMinor)
	}
	if err := order.RemoveLine(101, now); !errors.Is(err, domain.ErrEmptyOrderLines) {
		t.Fatalf("expected ErrEmptyOrderLines for last line, got %v", err)
	}
}

func TestOrderTransitionTo(t *testing.T) {
	now := time.Now().UTC().Add(time.Minute)

	order := makeOrder()
	changed, err := order.TransitionTo(domain.OrderStatusInPreparation, now)
	if err != nil || !changed {
		t.Fatalf("expected transition, got changed=%v err=%v", changed, err)
	}
	if !order.StatusUpdatedAt.Equal(now) {
		t.Fatalf("statusUpdatedAt not updated")
	}

	changed, err = order.TransitionTo(domain.OrderStatusInPreparation, now.Add(time.Minute))
	if err != nil || changed {
		t.Fatalf("same status must be no-op, got changed=%v err=%v", changed, err)
	}
	if !order.StatusUpdatedAt.Equal(now) {
		t.Fatalf("no-op must not touch statusUpdatedAt")
	}

	if _, err := order.TransitionTo(domain.OrderStatusCompleted, now); !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}
