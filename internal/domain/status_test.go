package domain

import (
	"errors"
	"testing"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name        string
		from, to    OrderStatus
		wantChanged bool
		wantErr     error
	}{
		{name: "created to in-preparation", from: OrderStatusCreated, to: OrderStatusInPreparation, wantChanged: true},
		{name: "in-preparation to ready", from: OrderStatusInPreparation, to: OrderStatusReady, wantChanged: true},
		{name: "ready to completed", from: OrderStatusReady, to: OrderStatusCompleted, wantChanged: true},
		{name: "created to cancelled", from: OrderStatusCreated, to: OrderStatusCancelled, wantChanged: true},
		{name: "in-preparation to cancelled", from: OrderStatusInPreparation, to: OrderStatusCancelled, wantChanged: true},
		{name: "ready to cancelled", from: OrderStatusReady, to: OrderStatusCancelled, wantChanged: true},
		{name: "same status is no-op", from: OrderStatusReady, to: OrderStatusReady},
		{name: "skip forward", from: OrderStatusCreated, to: OrderStatusCompleted, wantErr: ErrInvalidStatusTransition},
		{name: "backwards", from: OrderStatusReady, to: OrderStatusCreated, wantErr: ErrInvalidStatusTransition},
		{name: "unknown target", from: OrderStatusCreated, to: OrderStatus("shipped"), wantErr: ErrInvalidStatusTransition},
		{name: "completed is terminal", from: OrderStatusCompleted, to: OrderStatusCancelled, wantErr: ErrOrderAlreadyFinalized},
		{name: "cancelled is terminal", from: OrderStatusCancelled, to: OrderStatusCancelled, wantErr: ErrOrderAlreadyFinalized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, err := CheckTransition(tt.from, tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}
			if changed != tt.wantChanged {
				t.Fatalf("changed=%v, want %v", changed, tt.wantChanged)
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, ok := ParseOrderStatus(" In-Preparation ")
	if !ok || status != OrderStatusInPreparation {
		t.Fatalf("got %q ok=%v", status, ok)
	}
	if _, ok := ParseOrderStatus("paid"); ok {
		t.Fatal("paid must not parse")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !OrderStatusCreated.LinesMutable() || !OrderStatusInPreparation.LinesMutable() {
		t.Fatal("created and in-preparation accept line changes")
	}
	if OrderStatusReady.LinesMutable() {
		t.Fatal("ready freezes lines")
	}
	if !OrderStatusReady.InProgress() || OrderStatusCompleted.InProgress() {
		t.Fatal("in-progress set must be created/in-preparation/ready")
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("ADMINISTRATOR")
	if !ok || role != RoleAdministrator || !role.IsStaff() {
		t.Fatalf("got %q ok=%v", role, ok)
	}
	if _, ok := ParseRole("guest"); ok {
		t.Fatal("guest must not parse")
	}
	if RoleCustomer.IsStaff() {
		t.Fatal("customer is not staff")
	}
}
