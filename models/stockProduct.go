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

// StockProduct is one warehouse intake batch. Quantity is the warehouse
// ledger cell: it is decremented by warehouse sales and signed adjustments,
// incremented by refunds, and never allowed below zero. The row is editable
// only until the first movement references it.
type StockProduct struct {
	ID             string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId     string          `gorm:"type:char(36);index;not null" json:"business_id"`
	ProductId      string          `gorm:"type:char(36);index;not null" json:"product_id"`
	SupplierId     string          `gorm:"type:char(36);index" json:"supplier_id"`
	BatchNumber    string          `gorm:"size:100" json:"batch_number"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	RetailPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"retail_price"`
	WholesalePrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wholesale_price"`
	ExpiryDate     *time.Time      `gorm:"default:null" json:"expiry_date"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (sp *StockProduct) BeforeCreate(tx *gorm.DB) error {
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	return nil
}

type NewStockProduct struct {
	ProductId      string          `json:"product_id" validate:"required"`
	SupplierId     string          `json:"supplier_id"`
	BatchNumber    string          `json:"batch_number"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	ExpiryDate     *time.Time      `json:"expiry_date"`
}

func (input NewStockProduct) validateInput(ctx context.Context, businessId string) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Product](ctx, businessId, input.ProductId); err != nil {
		return errors.New("product not found")
	}
	if input.SupplierId != "" {
		if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
			return errors.New("supplier not found")
		}
	}
	if input.Quantity.IsNegative() {
		return errors.New("batch quantity cannot be negative")
	}
	if !input.Quantity.Equal(input.Quantity.Truncate(0)) {
		return errors.New("batch quantity must be a whole number")
	}
	return nil
}

func CreateStockProduct(ctx context.Context, input *NewStockProduct) (*StockProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validateInput(ctx, businessId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	stockProduct := StockProduct{
		BusinessId:     businessId,
		ProductId:      input.ProductId,
		SupplierId:     input.SupplierId,
		BatchNumber:    input.BatchNumber,
		Quantity:       input.Quantity,
		UnitCost:       input.UnitCost,
		RetailPrice:    input.RetailPrice,
		WholesalePrice: input.WholesalePrice,
		ExpiryDate:     input.ExpiryDate,
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&stockProduct).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := recordAudit(tx.WithContext(ctx), auditActionCreate, stockProduct.ID, "StockProduct", nil, stockProduct,
		fmt.Sprintf("stock batch created with quantity %s", stockProduct.Quantity.String())); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &stockProduct, nil
}

// HasMovements reports whether any adjustment, reservation, sale line or
// transfer line references the batch. Once true the row is frozen.
func (sp *StockProduct) HasMovements(ctx context.Context) (bool, error) {
	counters := []func() (int64, error){
		func() (int64, error) {
			return utils.ResourceCountWhere[StockAdjustment](ctx, sp.BusinessId, "stock_product_id = ?", sp.ID)
		},
		func() (int64, error) {
			return utils.ResourceCountWhere[StockReservation](ctx, sp.BusinessId, "stock_product_id = ?", sp.ID)
		},
		func() (int64, error) {
			return utils.ResourceCountWhere[SaleItem](ctx, sp.BusinessId, "stock_product_id = ?", sp.ID)
		},
		func() (int64, error) {
			return utils.ResourceCountWhere[TransferRequestItem](ctx, sp.BusinessId, "stock_product_id = ?", sp.ID)
		},
	}
	for _, count := range counters {
		n, err := count()
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// UpdateStockProduct edits a batch inside its creation-time-only mutability
// window. After the first movement the batch is read-only; corrections must
// go through stock adjustments instead.
func UpdateStockProduct(ctx context.Context, id string, input *NewStockProduct) (*StockProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	stockProduct, err := utils.FetchModel[StockProduct](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	moved, err := stockProduct.HasMovements(ctx)
	if err != nil {
		return nil, err
	}
	if moved {
		// Admins may correct a moved batch unless strict mode locks it down.
		isAdmin, _ := utils.GetIsAdminFromContext(ctx)
		if !isAdmin || config.StrictBatchImmutability() {
			return nil, errors.New("stock batch has recorded movements and can no longer be edited; use a stock adjustment")
		}
	}
	if err := input.validateInput(ctx, businessId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	before := *stockProduct

	stockProduct.ProductId = input.ProductId
	stockProduct.SupplierId = input.SupplierId
	stockProduct.BatchNumber = input.BatchNumber
	stockProduct.Quantity = input.Quantity
	stockProduct.UnitCost = input.UnitCost
	stockProduct.RetailPrice = input.RetailPrice
	stockProduct.WholesalePrice = input.WholesalePrice
	stockProduct.ExpiryDate = input.ExpiryDate

	tx := db.Begin()
	if err := tx.WithContext(ctx).Save(stockProduct).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := recordAudit(tx.WithContext(ctx), auditActionUpdate, stockProduct.ID, "StockProduct", before, stockProduct,
		"stock batch edited before first movement"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return stockProduct, nil
}

func GetStockProduct(ctx context.Context, id string) (*StockProduct, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockProduct](ctx, businessId, id)
}

// lockStockProduct fetches the batch row FOR UPDATE inside tx.
func lockStockProduct(tx *gorm.DB, businessId, id string) (*StockProduct, error) {
	var sp StockProduct
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		First(&sp).Error; err != nil {
		return nil, fmt.Errorf("lock stock batch %s: %w", id, err)
	}
	return &sp, nil
}

// applyStockProductDelta mutates the locked batch quantity, rejecting any
// result below zero. Callers must hold the row lock (lockStockProduct).
func applyStockProductDelta(tx *gorm.DB, sp *StockProduct, delta decimal.Decimal) error {
	next := sp.Quantity.Add(delta)
	if next.IsNegative() {
		return &NegativeStockError{LedgerType: "stock_product", LedgerId: sp.ID, Resulting: next}
	}
	if err := tx.Model(&StockProduct{}).Where("id = ?", sp.ID).
		Update("quantity", next).Error; err != nil {
		return err
	}
	sp.Quantity = next
	return nil
}
