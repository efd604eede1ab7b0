package policy

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
)

func TestAuthorize(t *testing.T) {
	customer := domain.Principal{ID: 1, Role: domain.RoleCustomer, Active: true}
	employee := domain.Principal{ID: 2, Role: domain.RoleEmployee, Active: true}
	admin := domain.Principal{ID: 3, Role: domain.RoleAdministrator, Active: true}

	tests := []struct {
		name      string
		principal domain.Principal
		op        Operation
		wantErr   error
	}{
		{name: "customer adds to cart", principal: customer, op: OpCartAddProduct},
		{name: "customer checks out", principal: customer, op: OpCheckout},
		{name: "customer reads history", principal: customer, op: OpListOrderHistory},
		{name: "employee cannot use cart", principal: employee, op: OpCartAddProduct, wantErr: domain.ErrRoleDenied},
		{name: "employee creates walk-in", principal: employee, op: OpCreateWalkInOrder},
		{name: "administrator advances status", principal: admin, op: OpUpdateOrderStatus},
		{name: "customer cannot advance status", principal: customer, op: OpUpdateOrderStatus, wantErr: domain.ErrRoleDenied},
		{name: "customer cannot list all", principal: customer, op: OpListAllOrders, wantErr: domain.ErrRoleDenied},
		{name: "customer cannot read by id", principal: customer, op: OpGetOrderByID, wantErr: domain.ErrRoleDenied},
		{name: "unknown role", principal: domain.Principal{ID: 4, Role: "guest", Active: true}, op: OpCartView, wantErr: domain.ErrRoleDenied},
		{name: "unknown operation", principal: admin, op: Operation("order.refund"), wantErr: domain.ErrRoleDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.principal, tt.op)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authorize()=%v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, domain.ErrForbidden) {
				t.Fatalf("denial must match ErrForbidden, got %v", err)
			}
		})
	}
}

func TestAuthorizeInactiveDeniedForEveryOperation(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleCustomer, domain.RoleEmployee, domain.RoleAdministrator} {
		principal := domain.Principal{ID: 9, Role: role, Active: false}
		for _, op := range Operations() {
			if err := Authorize(principal, op); !errors.Is(err, domain.ErrPrincipalInactive) {
				t.Fatalf("role=%s op=%s: expected ErrPrincipalInactive, got %v", role, op, err)
			}
		}
	}
}

func TestEveryOperationHasRule(t *testing.T) {
	if len(Operations()) != 17 {
		t.Fatalf("expected 17 operations, got %d", len(Operations()))
	}
}
