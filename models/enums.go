package models

// Statuses are sealed string types with explicit transition tables.
// Every status change in this package goes through CanTransitionTo so an
// illegal transition is caught at the boundary, not discovered in the ledger.

type SaleStatus string

const (
	SaleStatusDraft     SaleStatus = "Draft"
	SaleStatusPending   SaleStatus = "Pending"
	SaleStatusPartial   SaleStatus = "Partial"
	SaleStatusCompleted SaleStatus = "Completed"
	SaleStatusCancelled SaleStatus = "Cancelled"
	SaleStatusRefunded  SaleStatus = "Refunded"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusDraft, SaleStatusPending, SaleStatusPartial,
		SaleStatusCompleted, SaleStatusCancelled, SaleStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s SaleStatus) IsTerminal() bool {
	return s == SaleStatusCancelled || s == SaleStatusRefunded
}

func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	switch s {
	case SaleStatusDraft:
		// completion picks Pending/Partial/Completed from the paid amounts
		return next == SaleStatusPending || next == SaleStatusPartial ||
			next == SaleStatusCompleted || next == SaleStatusCancelled
	case SaleStatusPending, SaleStatusPartial, SaleStatusCompleted:
		return next == SaleStatusPartial || next == SaleStatusCompleted ||
			next == SaleStatusRefunded || next == SaleStatusCancelled
	}
	return false
}

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "Active"
	ReservationStatusCommitted ReservationStatus = "Committed"
	ReservationStatusReleased  ReservationStatus = "Released"
	ReservationStatusCancelled ReservationStatus = "Cancelled"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusActive, ReservationStatusCommitted,
		ReservationStatusReleased, ReservationStatusCancelled:
		return true
	}
	return false
}

func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusActive
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	if s != ReservationStatusActive {
		return false
	}
	return next == ReservationStatusCommitted || next == ReservationStatusReleased ||
		next == ReservationStatusCancelled
}

type TransferRequestStatus string

const (
	TransferRequestStatusNew       TransferRequestStatus = "New"
	TransferRequestStatusAssigned  TransferRequestStatus = "Assigned"
	TransferRequestStatusFulfilled TransferRequestStatus = "Fulfilled"
	TransferRequestStatusCancelled TransferRequestStatus = "Cancelled"
)

func (s TransferRequestStatus) Valid() bool {
	switch s {
	case TransferRequestStatusNew, TransferRequestStatusAssigned,
		TransferRequestStatusFulfilled, TransferRequestStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo covers the normal lifecycle. Fulfilled -> New is handled
// separately because it needs the manager override flag.
func (s TransferRequestStatus) CanTransitionTo(next TransferRequestStatus) bool {
	if next == TransferRequestStatusCancelled {
		return s != TransferRequestStatusCancelled
	}
	switch s {
	case TransferRequestStatusNew:
		return next == TransferRequestStatusAssigned
	case TransferRequestStatusAssigned:
		return next == TransferRequestStatusFulfilled
	}
	return false
}

type AdjustmentStatus string

const (
	AdjustmentStatusPending   AdjustmentStatus = "Pending"
	AdjustmentStatusCompleted AdjustmentStatus = "Completed"
)

func (s AdjustmentStatus) Valid() bool {
	return s == AdjustmentStatusPending || s == AdjustmentStatusCompleted
}

func (s AdjustmentStatus) CanTransitionTo(next AdjustmentStatus) bool {
	return s == AdjustmentStatusPending && next == AdjustmentStatusCompleted
}

type AdjustmentType string

const (
	AdjustmentTypeDamage     AdjustmentType = "Damage"
	AdjustmentTypeTheft      AdjustmentType = "Theft"
	AdjustmentTypeCorrection AdjustmentType = "Correction"
)

func (t AdjustmentType) Valid() bool {
	return t == AdjustmentTypeDamage || t == AdjustmentTypeTheft || t == AdjustmentTypeCorrection
}

// IsShrinkage classifies the adjustment for reconciliation.
func (t AdjustmentType) IsShrinkage() bool {
	return t == AdjustmentTypeDamage || t == AdjustmentTypeTheft
}

type RefundType string

const (
	RefundTypeFull     RefundType = "Full"
	RefundTypePartial  RefundType = "Partial"
	RefundTypeExchange RefundType = "Exchange"
)

func (t RefundType) Valid() bool {
	return t == RefundTypeFull || t == RefundTypePartial || t == RefundTypeExchange
}

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "Cash"
	PaymentMethodCard   PaymentMethod = "Card"
	PaymentMethodMobile PaymentMethod = "Mobile"
	PaymentMethodCredit PaymentMethod = "Credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobile, PaymentMethodCredit:
		return true
	}
	return false
}

// saleStatusFromAmounts picks the post-completion status from the paid amounts.
func saleStatusFromAmounts(hasDue, hasPayment bool) SaleStatus {
	switch {
	case !hasDue:
		return SaleStatusCompleted
	case hasPayment:
		return SaleStatusPartial
	default:
		return SaleStatusPending
	}
}

func invalidTransition(entity string, from, to string) error {
	return &InvalidStateTransitionError{Entity: entity, From: from, To: to}
}
