package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const mysqlErrDuplicateEntry = 1062

// CheckoutInput carries the payment captured at the register.
type CheckoutInput struct {
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// CompleteSale checks out a draft sale: holds are committed, ledgers are
// decremented, the receipt number is assigned and the status lands on
// completed, partial or pending depending on what was paid. Everything
// happens in one transaction; an expired hold aborts the checkout.
func CompleteSale(ctx context.Context, saleId string, input *CheckoutInput) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.PaidAmount.IsNegative() {
		return nil, errors.New("paid amount cannot be negative")
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", input.PaymentMethod)
	}

	db := config.GetDB()
	var sale *Sale

	// Retry only on a receipt number collision from a concurrent checkout.
	for attempt := 0; ; attempt++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			sale, err = lockSale(tx, businessId, saleId)
			if err != nil {
				return err
			}
			if sale.Status != SaleStatusDraft {
				return invalidTransition("sale", string(sale.Status), string(SaleStatusCompleted))
			}
			if len(sale.Items) == 0 {
				return errors.New("cannot check out an empty sale")
			}

			now := time.Now()
			if _, err := commitSaleReservations(tx, businessId, sale.ID, now); err != nil {
				return err
			}
			if err := applySaleStockForCompletion(tx, sale); err != nil {
				return err
			}

			if input.PaidAmount.GreaterThan(sale.Total) {
				return fmt.Errorf("paid amount %s exceeds sale total %s", input.PaidAmount, sale.Total)
			}
			sale.PaidAmount = input.PaidAmount
			if input.PaymentMethod != "" {
				sale.PaymentMethod = input.PaymentMethod
			}

			receipt, err := nextReceiptNumber(ctx, businessId, now)
			if err != nil {
				return err
			}
			sale.ReceiptNumber = &receipt
			sale.SaleDate = now
			sale.Status = saleStatusFromAmounts(sale.DueAmount().IsPositive(), sale.PaidAmount.IsPositive())

			due := sale.DueAmount()
			if due.IsPositive() {
				if sale.CustomerId == "" {
					return errors.New("a sale with an outstanding balance must name a customer")
				}
				if err := applyCustomerBalance(tx, businessId, sale.CustomerId, due, "sale", sale.ID); err != nil {
					return err
				}
			}

			if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
				Updates(map[string]interface{}{
					"status":         sale.Status,
					"paid_amount":    sale.PaidAmount,
					"payment_method": sale.PaymentMethod,
					"receipt_number": sale.ReceiptNumber,
					"sale_date":      sale.SaleDate,
				}).Error; err != nil {
				return err
			}
			return recordAudit(tx, auditActionUpdate, sale.ID, "Sale", nil, sale,
				fmt.Sprintf("sale checked out as %s with receipt %s", sale.Status, receipt))
		})
		if err == nil {
			return sale, nil
		}
		var dup *mysql.MySQLError
		if errors.As(err, &dup) && dup.Number == mysqlErrDuplicateEntry && attempt < 3 {
			config.GetLogger().WithField("sale_id", saleId).Warn("receipt number collision, retrying checkout")
			continue
		}
		return nil, err
	}
}

// nextReceiptNumber hands out a per-business, per-day sequence from redis.
// The unique index on (business_id, receipt_number) is the backstop when
// redis restarts mid-day.
func nextReceiptNumber(ctx context.Context, businessId string, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := config.GetRedisCounter(ctx, fmt.Sprintf("receipt_seq:%s:%s", businessId, day))
	if err != nil {
		return "", fmt.Errorf("receipt sequence: %w", err)
	}
	return fmt.Sprintf("R%s-%05d", day, seq), nil
}

// RecordPayment applies a payment against a pending or partially paid
// sale and settles the matching slice of the customer balance.
func RecordPayment(ctx context.Context, saleId string, amount decimal.Decimal) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !amount.IsPositive() {
		return nil, errors.New("payment amount must be positive")
	}

	db := config.GetDB()
	var sale *Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sale, err = lockSale(tx, businessId, saleId)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusPending && sale.Status != SaleStatusPartial {
			return invalidTransition("sale", string(sale.Status), string(SaleStatusPartial))
		}
		if amount.GreaterThan(sale.DueAmount()) {
			return fmt.Errorf("payment %s exceeds outstanding balance %s", amount, sale.DueAmount())
		}

		sale.PaidAmount = sale.PaidAmount.Add(amount)
		sale.Status = saleStatusFromAmounts(sale.DueAmount().IsPositive(), sale.PaidAmount.IsPositive())

		if sale.CustomerId != "" {
			if err := applyCustomerBalance(tx, businessId, sale.CustomerId, amount.Neg(), "payment", sale.ID); err != nil {
				return err
			}
		}
		if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
			Updates(map[string]interface{}{
				"status":      sale.Status,
				"paid_amount": sale.PaidAmount,
			}).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionUpdate, sale.ID, "Sale", nil, sale,
			fmt.Sprintf("payment of %s recorded", amount))
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// CancelSale voids a sale from any non-terminal state. Cancelling an
// already cancelled or refunded sale fails with an invalid transition. A
// draft just drops its holds; a checked-out sale first refunds whatever
// is still refundable, restocking unless restock is false (damaged goods
// stay written off).
func CancelSale(ctx context.Context, saleId string, restock bool) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var sale *Sale
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sale, err = lockSale(tx, businessId, saleId)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransitionTo(SaleStatusCancelled) {
			return invalidTransition("sale", string(sale.Status), string(SaleStatusCancelled))
		}

		switch sale.Status {
		case SaleStatusDraft:
			if err := releaseSaleReservations(tx, businessId, sale.ID, ReservationStatusCancelled); err != nil {
				return err
			}
		default:
			if _, err := refundRemainderTx(tx, sale, restock); err != nil {
				return err
			}
		}

		sale.Status = SaleStatusCancelled
		if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
			Update("status", sale.Status).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionUpdate, sale.ID, "Sale", nil, sale,
			fmt.Sprintf("sale cancelled (restock=%t)", restock))
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}
