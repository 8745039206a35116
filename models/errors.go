package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error taxonomy for the reservation/commit/refund core. These carry the
// structured detail the API layer maps to 400/404/409 payloads.

// InsufficientStockError is returned when a reservation or commit asks for
// more than is available. Recoverable client-side.
type InsufficientStockError struct {
	StockProductId string
	StorefrontId   string // empty for warehouse-level checks
	ProductId      string
	Available      decimal.Decimal
	Requested      decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	if e.StorefrontId != "" {
		return fmt.Sprintf("insufficient stock for product %s at storefront %s: available %s, requested %s",
			e.ProductId, e.StorefrontId, e.Available.String(), e.Requested.String())
	}
	return fmt.Sprintf("insufficient stock for batch %s: available %s, requested %s",
		e.StockProductId, e.Available.String(), e.Requested.String())
}

// InvalidStateTransitionError is returned for any illegal status change
// (completing a non-draft sale, re-cancelling a terminal sale, etc).
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// OverRefundError is returned when a refund asks for more than the line's
// remaining refundable quantity.
type OverRefundError struct {
	SaleItemId string
	Refundable decimal.Decimal
	Requested  decimal.Decimal
}

func (e *OverRefundError) Error() string {
	return fmt.Sprintf("refund for sale item %s exceeds refundable quantity: refundable %s, requested %s",
		e.SaleItemId, e.Refundable.String(), e.Requested.String())
}

// FractionalQuantityError is returned when a sale line carries a fractional
// quantity. Stock ledgers are integer-only even though the column is decimal.
type FractionalQuantityError struct {
	SaleItemId string
	Quantity   decimal.Decimal
}

func (e *FractionalQuantityError) Error() string {
	return fmt.Sprintf("fractional quantity %s on sale item %s is not supported by the stock ledger",
		e.Quantity.String(), e.SaleItemId)
}

// NegativeStockError aborts any transaction whose post-mutation quantity
// would go below zero.
type NegativeStockError struct {
	LedgerType string // "stock_product" or "storefront_inventory"
	LedgerId   string
	Resulting  decimal.Decimal
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("%s %s would go negative (%s)", e.LedgerType, e.LedgerId, e.Resulting.String())
}

// ErrManagerOverrideRequired names the flag a caller must set to move a
// fulfilled transfer request back to New.
var ErrManagerOverrideRequired = errors.New("reopening a fulfilled transfer request requires manager_override=true")
