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
	"gorm.io/gorm/clause"
)

// Sale is the sale aggregate. A draft sale is the cart: its lines carry
// active stock holds and nothing has touched the ledgers yet. Checkout
// commits the holds, applies the ledger decrements and assigns the
// receipt number in one transaction.
type Sale struct {
	ID             string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId     string          `gorm:"type:char(36);index;uniqueIndex:idx_business_receipt;not null" json:"business_id"`
	StorefrontId   string          `gorm:"type:char(36);index" json:"storefront_id"`
	CustomerId     string          `gorm:"type:char(36);index" json:"customer_id"`
	Status         SaleStatus      `gorm:"size:20;index" json:"status"`
	ReceiptNumber  *string         `gorm:"size:40;uniqueIndex:idx_business_receipt" json:"receipt_number"`
	SaleDate       time.Time       `json:"sale_date"`
	SubTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sub_total"`
	Discount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	Tax            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	RefundedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refunded_amount"`
	PaymentMethod  PaymentMethod   `gorm:"size:20" json:"payment_method"`
	// CartSessionId is a free-text correlation tag for anonymous carts.
	// Holds reference the sale by id; this column carries no semantics.
	CartSessionId string     `gorm:"size:100;index" json:"cart_session_id"`
	Notes         string     `gorm:"size:500" json:"notes"`
	Items         []SaleItem `gorm:"foreignKey:SaleId" json:"items"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// DueAmount is the outstanding balance. Cancellation and full refund
// settle whatever was still owed through the refund and customer balance
// reversals, so terminal sales owe nothing.
func (s *Sale) DueAmount() decimal.Decimal {
	if s.Status.IsTerminal() {
		return decimal.Zero
	}
	return s.Total.Sub(s.PaidAmount)
}

// IsWarehouseSale reports whether lines draw from warehouse batches
// directly instead of a storefront ledger.
func (s *Sale) IsWarehouseSale() bool {
	return s.StorefrontId == ""
}

// SaleItem is one line. RefundedQuantity accumulates across refunds so a
// line can never be refunded past what was sold.
type SaleItem struct {
	ID               string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId       string          `gorm:"type:char(36);index;not null" json:"business_id"`
	SaleId           string          `gorm:"type:char(36);index;not null" json:"sale_id"`
	ProductId        string          `gorm:"type:char(36);index;not null" json:"product_id"`
	StockProductId   string          `gorm:"type:char(36);index" json:"stock_product_id"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,4)" json:"unit_price"`
	Discount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	LineTotal        decimal.Decimal `gorm:"type:decimal(20,4)" json:"line_total"`
	RefundedQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refunded_quantity"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (si *SaleItem) BeforeCreate(tx *gorm.DB) error {
	if si.ID == "" {
		si.ID = uuid.NewString()
	}
	return nil
}

func (si *SaleItem) RefundableQuantity() decimal.Decimal {
	return si.Quantity.Sub(si.RefundedQuantity)
}

func computeLineTotal(quantity, unitPrice, discount decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Sub(discount).Round(2)
}

type NewSaleItem struct {
	ProductId      string          `json:"product_id" validate:"required"`
	StockProductId string          `json:"stock_product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Discount       decimal.Decimal `json:"discount"`
}

type NewSale struct {
	StorefrontId  string        `json:"storefront_id"`
	CustomerId    string        `json:"customer_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CartSessionId string        `json:"cart_session_id"`
	Notes         string        `json:"notes"`
	Items         []NewSaleItem `json:"items"`
}

func (input *NewSaleItem) validateInput(saleItemId string) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if !input.Quantity.IsPositive() {
		return errors.New("sale line quantity must be positive")
	}
	if !input.Quantity.Equal(input.Quantity.Truncate(0)) {
		return &FractionalQuantityError{SaleItemId: saleItemId, Quantity: input.Quantity}
	}
	if input.UnitPrice.IsNegative() || input.Discount.IsNegative() {
		return errors.New("sale line price and discount cannot be negative")
	}
	return nil
}

// CreateSale opens a draft sale and reserves stock for every line. Any
// line that cannot be covered fails the whole call and leaves no holds.
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", input.PaymentMethod)
	}
	if input.StorefrontId == "" {
		// POS terminals are bound to a storefront upstream
		if v, ok := utils.GetStorefrontIdFromContext(ctx); ok && v != "" {
			input.StorefrontId = v
		}
	}
	if input.StorefrontId != "" {
		if err := utils.ValidateResourceId[Storefront](ctx, businessId, input.StorefrontId); err != nil {
			return nil, errors.New("storefront not found")
		}
	}
	if input.CustomerId != "" {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
			return nil, errors.New("customer not found")
		}
	}

	sale := &Sale{
		BusinessId:    businessId,
		StorefrontId:  input.StorefrontId,
		CustomerId:    input.CustomerId,
		Status:        SaleStatusDraft,
		SaleDate:      time.Now(),
		PaymentMethod: input.PaymentMethod,
		CartSessionId: input.CartSessionId,
		Notes:         input.Notes,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(sale).Error; err != nil {
			return err
		}
		for i := range input.Items {
			if _, err := addSaleItemTx(ctx, tx, businessId, sale, &input.Items[i]); err != nil {
				return err
			}
		}
		return recalcSaleTotals(tx, sale)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// addSaleItemTx creates the line and its hold inside tx. The hold keeps
// the cart honest without touching the ledgers.
func addSaleItemTx(ctx context.Context, tx *gorm.DB, businessId string, sale *Sale, input *NewSaleItem) (*SaleItem, error) {
	if err := input.validateInput(""); err != nil {
		return nil, err
	}
	if sale.IsWarehouseSale() && input.StockProductId == "" {
		return nil, errors.New("warehouse sale lines must name a stock batch")
	}
	if !sale.IsWarehouseSale() && input.StockProductId != "" {
		return nil, errors.New("storefront sale lines cannot name a stock batch")
	}

	item := &SaleItem{
		BusinessId:     businessId,
		SaleId:         sale.ID,
		ProductId:      input.ProductId,
		StockProductId: input.StockProductId,
		Quantity:       input.Quantity,
		UnitPrice:      input.UnitPrice,
		Discount:       input.Discount,
		LineTotal:      computeLineTotal(input.Quantity, input.UnitPrice, input.Discount),
	}
	if err := tx.Create(item).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	if sale.IsWarehouseSale() {
		sp, err := lockStockProduct(tx, businessId, input.StockProductId)
		if err != nil {
			return nil, err
		}
		available, err := availableWarehouseStockTx(tx, businessId, sp)
		if err != nil {
			return nil, err
		}
		if available.LessThan(input.Quantity) {
			return nil, &InsufficientStockError{
				StockProductId: input.StockProductId,
				ProductId:      input.ProductId,
				Available:      available,
				Requested:      input.Quantity,
			}
		}
	} else {
		inv, err := lockStorefrontInventory(tx, businessId, sale.StorefrontId, input.ProductId)
		if err != nil {
			return nil, err
		}
		held, err := reservedStorefrontQuantity(tx, businessId, sale.StorefrontId, input.ProductId, now)
		if err != nil {
			return nil, err
		}
		available := inv.Quantity.Sub(held)
		if available.LessThan(input.Quantity) {
			return nil, &InsufficientStockError{
				StorefrontId: sale.StorefrontId,
				ProductId:    input.ProductId,
				Available:    available,
				Requested:    input.Quantity,
			}
		}
	}

	hold := &StockReservation{
		BusinessId:     businessId,
		SaleId:         sale.ID,
		SaleItemId:     item.ID,
		ProductId:      input.ProductId,
		StorefrontId:   sale.StorefrontId,
		StockProductId: input.StockProductId,
		Quantity:       input.Quantity,
		Status:         ReservationStatusActive,
		ExpiresAt:      now.Add(DefaultReservationTTL),
	}
	if err := tx.Create(hold).Error; err != nil {
		return nil, err
	}
	sale.Items = append(sale.Items, *item)
	return item, nil
}

// AddSaleItem appends a line to a draft sale and holds stock for it.
func AddSaleItem(ctx context.Context, saleId string, input *NewSaleItem) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	sale, err := utils.FetchModel[Sale](ctx, businessId, saleId)
	if err != nil {
		return nil, err
	}
	if sale.Status != SaleStatusDraft {
		return nil, invalidTransition("sale", string(sale.Status), string(SaleStatusDraft))
	}

	if sale.IsWarehouseSale() {
		release, err := utils.TenantLock(ctx, businessId, "warehouse", "sale", "AddSaleItem")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := addSaleItemTx(ctx, tx, businessId, sale, input); err != nil {
			return err
		}
		return recalcSaleTotals(tx, sale)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// RemoveSaleItem drops a draft line and releases its hold.
func RemoveSaleItem(ctx context.Context, saleId, saleItemId string) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	sale, err := utils.FetchModel[Sale](ctx, businessId, saleId)
	if err != nil {
		return nil, err
	}
	if sale.Status != SaleStatusDraft {
		return nil, invalidTransition("sale", string(sale.Status), string(SaleStatusDraft))
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item SaleItem
		if err := tx.Where("business_id = ? AND sale_id = ? AND id = ?", businessId, saleId, saleItemId).
			First(&item).Error; err != nil {
			return err
		}
		var holds []*StockReservation
		if err := tx.Where("business_id = ? AND sale_item_id = ? AND status = ?", businessId, saleItemId, ReservationStatusActive).
			Find(&holds).Error; err != nil {
			return err
		}
		for _, h := range holds {
			if err := transitionReservation(tx, h, ReservationStatusCancelled); err != nil {
				return err
			}
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		return recalcSaleTotals(tx, sale)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// recalcSaleTotals re-derives subtotal and total from the lines inside tx.
func recalcSaleTotals(tx *gorm.DB, sale *Sale) error {
	var items []SaleItem
	if err := tx.Where("business_id = ? AND sale_id = ?", sale.BusinessId, sale.ID).
		Order("created_at").
		Find(&items).Error; err != nil {
		return err
	}
	subTotal := decimal.Zero
	for _, it := range items {
		subTotal = subTotal.Add(it.LineTotal)
	}
	sale.Items = items
	sale.SubTotal = subTotal
	sale.Total = subTotal.Sub(sale.Discount).Add(sale.Tax).Round(2)
	return tx.Model(&Sale{}).Where("id = ?", sale.ID).
		Updates(map[string]interface{}{
			"sub_total": sale.SubTotal,
			"total":     sale.Total,
		}).Error
}

func GetSale(ctx context.Context, id string) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var sale Sale
	err := db.WithContext(ctx).Preload("Items").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func ListSales(ctx context.Context, status SaleStatus, limit int) ([]*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	db := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId)
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("unknown sale status %q", status)
		}
		db = db.Where("status = ?", status)
	}
	var sales []*Sale
	err := db.Order("created_at DESC").Limit(limit).Find(&sales).Error
	return sales, err
}

// DeleteAbandonedDraftSales removes draft sales older than the cutoff
// across all tenants, releasing and deleting their holds first. Draft
// sales never touched a ledger, so deletion needs no compensation.
func DeleteAbandonedDraftSales(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	db := config.GetDB().WithContext(ctx)
	cutoff := time.Now().Add(-olderThan)

	var stale []*Sale
	if err := db.Where("status = ? AND created_at < ?", SaleStatusDraft, cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}
	if dryRun {
		return int64(len(stale)), nil
	}

	var deleted int64
	for _, sale := range stale {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := purgeSaleReservations(tx, sale.BusinessId, sale.ID); err != nil {
				return err
			}
			if err := tx.Where("business_id = ? AND sale_id = ?", sale.BusinessId, sale.ID).
				Delete(&SaleItem{}).Error; err != nil {
				return err
			}
			return tx.Delete(sale).Error
		})
		if err != nil {
			// keep sweeping the rest; a stuck cart should not block cleanup
			config.LogError(config.GetLogger(), "sale.go", "DeleteAbandonedDraftSales", "delete draft sale", sale.ID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// lockSale fetches the sale row FOR UPDATE so lifecycle transitions on the
// same sale serialize.
func lockSale(tx *gorm.DB, businessId, id string) (*Sale, error) {
	var sale Sale
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		First(&sale).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("business_id = ? AND sale_id = ?", businessId, id).
		Order("created_at").
		Find(&sale.Items).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}
