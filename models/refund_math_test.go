package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeLineTotal(t *testing.T) {
	got := computeLineTotal(dec("2"), dec("600"), decimal.Zero)
	if !got.Equal(dec("1200")) {
		t.Errorf("2x600: got %s", got)
	}
	got = computeLineTotal(dec("5"), dec("25"), dec("10"))
	if !got.Equal(dec("115")) {
		t.Errorf("5x25 - 10: got %s", got)
	}
	// rounding lands on cents
	got = computeLineTotal(dec("3"), dec("3.333"), decimal.Zero)
	if !got.Equal(dec("10.00")) {
		t.Errorf("3x3.333: got %s", got)
	}
}

func TestProrateRefundAmountPartial(t *testing.T) {
	// 2 laptops at 600 each; refund one -> exactly 600.
	item := &SaleItem{
		Quantity:  dec("2"),
		UnitPrice: dec("600"),
		LineTotal: dec("1200"),
	}
	got := prorateRefundAmount(item, dec("1"), decimal.Zero)
	if !got.Equal(dec("600")) {
		t.Errorf("1 of 2 laptops: got %s, want 600", got)
	}
}

func TestProrateRefundAmountAbsorbsRoundingResidue(t *testing.T) {
	// Discounted line where per-unit proration does not divide evenly:
	// 3 units selling for 100.00 in total. Unit share is 33.333...,
	// first two refunds round to 33.33 each; the last refund must close
	// the books at exactly 100.00.
	item := &SaleItem{
		Quantity:  dec("3"),
		LineTotal: dec("100.00"),
	}

	first := prorateRefundAmount(item, dec("1"), decimal.Zero)
	if !first.Equal(dec("33.33")) {
		t.Fatalf("first unit: got %s, want 33.33", first)
	}
	item.RefundedQuantity = dec("1")

	second := prorateRefundAmount(item, dec("1"), first)
	if !second.Equal(dec("33.33")) {
		t.Fatalf("second unit: got %s, want 33.33", second)
	}
	item.RefundedQuantity = dec("2")

	last := prorateRefundAmount(item, dec("1"), first.Add(second))
	if !last.Equal(dec("33.34")) {
		t.Fatalf("last unit: got %s, want 33.34", last)
	}
	if !first.Add(second).Add(last).Equal(item.LineTotal) {
		t.Fatalf("refunds sum to %s, want %s", first.Add(second).Add(last), item.LineTotal)
	}
}

func TestProrateRefundAmountFullLine(t *testing.T) {
	item := &SaleItem{
		Quantity:  dec("5"),
		UnitPrice: dec("25"),
		LineTotal: dec("125"),
	}
	got := prorateRefundAmount(item, dec("5"), decimal.Zero)
	if !got.Equal(dec("125")) {
		t.Errorf("full line: got %s, want 125", got)
	}
}

func TestRefundableQuantity(t *testing.T) {
	item := &SaleItem{Quantity: dec("5"), RefundedQuantity: dec("2")}
	if got := item.RefundableQuantity(); !got.Equal(dec("3")) {
		t.Errorf("got %s, want 3", got)
	}
}

func TestRefundRemainderSkipsFullyRefundedSale(t *testing.T) {
	sale := &Sale{
		Status: SaleStatusPartial,
		Items: []SaleItem{
			{Quantity: dec("2"), RefundedQuantity: dec("2"), LineTotal: dec("1200")},
			{Quantity: dec("5"), RefundedQuantity: dec("5"), LineTotal: dec("125")},
		},
	}
	// nothing refundable: no refund row is written, so no db is touched
	total, err := refundRemainderTx(nil, sale, true)
	if err != nil {
		t.Fatalf("refundRemainderTx: %v", err)
	}
	if !total.IsZero() {
		t.Errorf("total: got %s, want 0", total)
	}
}

func TestDueAmountSettledAtTerminalStatus(t *testing.T) {
	sale := &Sale{Status: SaleStatusPending, Total: dec("1325"), PaidAmount: decimal.Zero}
	if got := sale.DueAmount(); !got.Equal(dec("1325")) {
		t.Errorf("pending due: got %s, want 1325", got)
	}
	if !sale.Total.Equal(sale.PaidAmount.Add(sale.DueAmount())) {
		t.Error("pending: total must equal paid + due")
	}

	// cancellation and full refund settle the remainder; nothing stays owed
	sale.Status = SaleStatusCancelled
	if got := sale.DueAmount(); !got.IsZero() {
		t.Errorf("cancelled due: got %s, want 0", got)
	}
	sale.Status = SaleStatusRefunded
	sale.PaidAmount = dec("650")
	if got := sale.DueAmount(); !got.IsZero() {
		t.Errorf("refunded due: got %s, want 0", got)
	}

	sale.Status = SaleStatusCompleted
	sale.PaidAmount = sale.Total
	if got := sale.DueAmount(); !got.IsZero() {
		t.Errorf("completed due: got %s, want 0", got)
	}
}
