package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Refund records money returned against a checked-out sale. Amounts are
// prorated per line from what the line actually sold for, so a discounted
// line refunds at its discounted price, not at list.
type Refund struct {
	ID         string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string          `gorm:"type:char(36);index;not null" json:"business_id"`
	SaleId     string          `gorm:"type:char(36);index;not null" json:"sale_id"`
	RefundType RefundType      `gorm:"size:20" json:"refund_type"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	Restocked  bool            `json:"restocked"`
	Reason     string          `gorm:"size:500" json:"reason"`
	Items      []RefundItem    `gorm:"foreignKey:RefundId" json:"items"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type RefundItem struct {
	ID         string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string          `gorm:"type:char(36);index;not null" json:"business_id"`
	RefundId   string          `gorm:"type:char(36);index;not null" json:"refund_id"`
	SaleItemId string          `gorm:"type:char(36);index;not null" json:"sale_item_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ri *RefundItem) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == "" {
		ri.ID = uuid.NewString()
	}
	return nil
}

type NewRefundItem struct {
	SaleItemId string          `json:"sale_item_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type NewRefund struct {
	RefundType RefundType      `json:"refund_type"`
	Restock    bool            `json:"restock"`
	Reason     string          `json:"reason"`
	Items      []NewRefundItem `json:"items" validate:"required,min=1"`
}

// refundedAmountForItem sums the money already returned against one line.
func refundedAmountForItem(tx *gorm.DB, businessId, saleItemId string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&RefundItem{}).
		Where("business_id = ? AND sale_item_id = ?", businessId, saleItemId).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// prorateRefundAmount computes the money for refunding quantity units of a
// line. The last units absorb any rounding residue so the sum of all
// refunds against a line lands exactly on the line total.
func prorateRefundAmount(item *SaleItem, quantity, alreadyRefunded decimal.Decimal) decimal.Decimal {
	if item.RefundedQuantity.Add(quantity).Equal(item.Quantity) {
		return item.LineTotal.Sub(alreadyRefunded)
	}
	return item.LineTotal.Div(item.Quantity).Mul(quantity).Round(2)
}

// ProcessRefund refunds quantities against a checked-out sale. Refunding
// more than a line has left fails the whole call. The sale moves to
// refunded when every line is fully refunded, otherwise to partial.
func ProcessRefund(ctx context.Context, saleId string, input *NewRefund) (*Refund, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.RefundType != "" && !input.RefundType.Valid() {
		return nil, fmt.Errorf("unknown refund type %q", input.RefundType)
	}

	db := config.GetDB()
	var refund *Refund
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sale, err := lockSale(tx, businessId, saleId)
		if err != nil {
			return err
		}
		switch sale.Status {
		case SaleStatusPending, SaleStatusPartial, SaleStatusCompleted:
		default:
			return invalidTransition("sale", string(sale.Status), string(SaleStatusRefunded))
		}

		itemsById := make(map[string]*SaleItem, len(sale.Items))
		for i := range sale.Items {
			itemsById[sale.Items[i].ID] = &sale.Items[i]
		}

		refund = &Refund{
			BusinessId: businessId,
			SaleId:     sale.ID,
			RefundType: input.RefundType,
			Restocked:  input.Restock,
			Reason:     input.Reason,
		}
		if refund.RefundType == "" {
			refund.RefundType = RefundTypePartial
		}
		if err := tx.Omit("Items").Create(refund).Error; err != nil {
			return err
		}

		total := decimal.Zero
		for _, line := range input.Items {
			item, found := itemsById[line.SaleItemId]
			if !found {
				return fmt.Errorf("sale item %s does not belong to sale %s", line.SaleItemId, saleId)
			}
			amount, err := refundSaleItemTx(tx, sale, refund, item, line.Quantity, input.Restock)
			if err != nil {
				return err
			}
			total = total.Add(amount)
		}
		refund.Amount = total
		if err := tx.Model(&Refund{}).Where("id = ?", refund.ID).
			Update("amount", total).Error; err != nil {
			return err
		}
		sale.RefundedAmount = sale.RefundedAmount.Add(total)
		if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
			Update("refunded_amount", sale.RefundedAmount).Error; err != nil {
			return err
		}

		if sale.CustomerId != "" && total.IsPositive() {
			if err := applyCustomerBalance(tx, businessId, sale.CustomerId, total.Neg(), "refund", refund.ID); err != nil {
				return err
			}
		}

		if err := settleSaleAfterRefund(tx, sale); err != nil {
			return err
		}
		return recordAudit(tx, auditActionCreate, refund.ID, "Refund", nil, refund,
			fmt.Sprintf("refund of %s against sale %s (restock=%t)", total, saleId, input.Restock))
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// refundSaleItemTx validates one refund line, writes the refund item,
// bumps the cumulative refunded quantity and optionally restocks.
func refundSaleItemTx(tx *gorm.DB, sale *Sale, refund *Refund, item *SaleItem, quantity decimal.Decimal, restock bool) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, errors.New("refund quantity must be positive")
	}
	if !quantity.Equal(quantity.Truncate(0)) {
		return decimal.Zero, &FractionalQuantityError{SaleItemId: item.ID, Quantity: quantity}
	}
	refundable := item.RefundableQuantity()
	if quantity.GreaterThan(refundable) {
		return decimal.Zero, &OverRefundError{SaleItemId: item.ID, Refundable: refundable, Requested: quantity}
	}

	alreadyRefunded, err := refundedAmountForItem(tx, sale.BusinessId, item.ID)
	if err != nil {
		return decimal.Zero, err
	}
	amount := prorateRefundAmount(item, quantity, alreadyRefunded)

	if err := tx.Create(&RefundItem{
		BusinessId: sale.BusinessId,
		RefundId:   refund.ID,
		SaleItemId: item.ID,
		Quantity:   quantity,
		Amount:     amount,
	}).Error; err != nil {
		return decimal.Zero, err
	}

	item.RefundedQuantity = item.RefundedQuantity.Add(quantity)
	if err := tx.Model(&SaleItem{}).Where("id = ?", item.ID).
		Update("refunded_quantity", item.RefundedQuantity).Error; err != nil {
		return decimal.Zero, err
	}

	if restock {
		if err := applySaleItemRestock(tx, sale, item, quantity); err != nil {
			return decimal.Zero, err
		}
	}
	return amount, nil
}

// settleSaleAfterRefund recomputes the sale status from refunded
// quantities.
func settleSaleAfterRefund(tx *gorm.DB, sale *Sale) error {
	fullyRefunded := true
	for i := range sale.Items {
		if sale.Items[i].RefundableQuantity().IsPositive() {
			fullyRefunded = false
			break
		}
	}
	next := SaleStatusPartial
	if fullyRefunded {
		next = SaleStatusRefunded
	}
	if sale.Status == next {
		return nil
	}
	if !sale.Status.CanTransitionTo(next) {
		return invalidTransition("sale", string(sale.Status), string(next))
	}
	sale.Status = next
	return tx.Model(&Sale{}).Where("id = ?", sale.ID).
		Update("status", next).Error
}

// refundRemainderTx refunds everything still refundable on a sale. Used
// by cancellation; runs inside the caller's transaction and leaves the
// status to the caller. A sale with nothing left to refund gets no
// refund row at all.
func refundRemainderTx(tx *gorm.DB, sale *Sale, restock bool) (decimal.Decimal, error) {
	anyRefundable := false
	for i := range sale.Items {
		if sale.Items[i].RefundableQuantity().IsPositive() {
			anyRefundable = true
			break
		}
	}
	if !anyRefundable {
		return decimal.Zero, nil
	}

	refund := &Refund{
		BusinessId: sale.BusinessId,
		SaleId:     sale.ID,
		RefundType: RefundTypeFull,
		Restocked:  restock,
		Reason:     "sale cancelled",
	}
	if err := tx.Omit("Items").Create(refund).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range sale.Items {
		item := &sale.Items[i]
		remaining := item.RefundableQuantity()
		if !remaining.IsPositive() {
			continue
		}
		amount, err := refundSaleItemTx(tx, sale, refund, item, remaining, restock)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	if err := tx.Model(&Refund{}).Where("id = ?", refund.ID).
		Update("amount", total).Error; err != nil {
		return decimal.Zero, err
	}
	sale.RefundedAmount = sale.RefundedAmount.Add(total)
	if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).
		Update("refunded_amount", sale.RefundedAmount).Error; err != nil {
		return decimal.Zero, err
	}
	if sale.CustomerId != "" && total.IsPositive() {
		if err := applyCustomerBalance(tx, sale.BusinessId, sale.CustomerId, total.Neg(), "refund", refund.ID); err != nil {
			return decimal.Zero, err
		}
	}
	return total, nil
}

func GetRefund(ctx context.Context, id string) (*Refund, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var refund Refund
	err := db.WithContext(ctx).Preload("Items").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func ListRefundsForSale(ctx context.Context, saleId string) ([]*Refund, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	var refunds []*Refund
	err := config.GetDB().WithContext(ctx).Preload("Items").
		Where("business_id = ? AND sale_id = ?", businessId, saleId).
		Order("created_at").
		Find(&refunds).Error
	return refunds, err
}
