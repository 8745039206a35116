package models

import "testing"

func TestSaleStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SaleStatus
		want     bool
	}{
		{SaleStatusDraft, SaleStatusCompleted, true},
		{SaleStatusDraft, SaleStatusPending, true},
		{SaleStatusDraft, SaleStatusPartial, true},
		{SaleStatusDraft, SaleStatusCancelled, true},
		{SaleStatusDraft, SaleStatusRefunded, false},
		{SaleStatusPending, SaleStatusPartial, true},
		{SaleStatusPartial, SaleStatusCompleted, true},
		{SaleStatusCompleted, SaleStatusRefunded, true},
		{SaleStatusCompleted, SaleStatusCancelled, true},
		{SaleStatusCancelled, SaleStatusCompleted, false},
		{SaleStatusCancelled, SaleStatusCancelled, false},
		{SaleStatusRefunded, SaleStatusCompleted, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestReservationStatusTerminal(t *testing.T) {
	terminals := []ReservationStatus{
		ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusCancelled,
	}
	for _, s := range terminals {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		for _, next := range []ReservationStatus{
			ReservationStatusActive, ReservationStatusCommitted,
			ReservationStatusReleased, ReservationStatusCancelled,
		} {
			if s.CanTransitionTo(next) {
				t.Errorf("%s -> %s should be rejected", s, next)
			}
		}
	}
	if ReservationStatusActive.IsTerminal() {
		t.Error("Active must not be terminal")
	}
	if !ReservationStatusActive.CanTransitionTo(ReservationStatusCommitted) {
		t.Error("Active -> Committed must be allowed")
	}
}

func TestTransferRequestStatusTransitions(t *testing.T) {
	if !TransferRequestStatusNew.CanTransitionTo(TransferRequestStatusAssigned) {
		t.Error("New -> Assigned must be allowed")
	}
	if !TransferRequestStatusAssigned.CanTransitionTo(TransferRequestStatusFulfilled) {
		t.Error("Assigned -> Fulfilled must be allowed")
	}
	if TransferRequestStatusNew.CanTransitionTo(TransferRequestStatusFulfilled) {
		t.Error("New -> Fulfilled must skip-check fail")
	}
	// reopening Fulfilled goes through the manager override path, not here
	if TransferRequestStatusFulfilled.CanTransitionTo(TransferRequestStatusNew) {
		t.Error("Fulfilled -> New must not pass the plain transition table")
	}
	for _, s := range []TransferRequestStatus{
		TransferRequestStatusNew, TransferRequestStatusAssigned, TransferRequestStatusFulfilled,
	} {
		if !s.CanTransitionTo(TransferRequestStatusCancelled) {
			t.Errorf("%s -> Cancelled must be allowed", s)
		}
	}
	if TransferRequestStatusCancelled.CanTransitionTo(TransferRequestStatusCancelled) {
		t.Error("Cancelled -> Cancelled must be rejected")
	}
}

func TestAdjustmentStatusAndType(t *testing.T) {
	if !AdjustmentStatusPending.CanTransitionTo(AdjustmentStatusCompleted) {
		t.Error("Pending -> Completed must be allowed")
	}
	if AdjustmentStatusCompleted.CanTransitionTo(AdjustmentStatusPending) {
		t.Error("Completed -> Pending must be rejected")
	}
	if !AdjustmentTypeDamage.IsShrinkage() || !AdjustmentTypeTheft.IsShrinkage() {
		t.Error("damage and theft are shrinkage")
	}
	if AdjustmentTypeCorrection.IsShrinkage() {
		t.Error("correction is not shrinkage")
	}
}

func TestSaleStatusFromAmounts(t *testing.T) {
	if got := saleStatusFromAmounts(false, true); got != SaleStatusCompleted {
		t.Errorf("no due: got %s", got)
	}
	if got := saleStatusFromAmounts(true, true); got != SaleStatusPartial {
		t.Errorf("due with payment: got %s", got)
	}
	if got := saleStatusFromAmounts(true, false); got != SaleStatusPending {
		t.Errorf("due with no payment: got %s", got)
	}
}
