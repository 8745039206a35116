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

// StockAdjustment is a signed correction against either a warehouse batch
// or a storefront ledger cell. It sits in pending until completed; only
// completion touches the ledger, so a pending adjustment can still be
// cancelled by deleting it.
type StockAdjustment struct {
	ID             string           `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId     string           `gorm:"type:char(36);index;not null" json:"business_id"`
	ProductId      string           `gorm:"type:char(36);index;not null" json:"product_id"`
	StockProductId string           `gorm:"type:char(36);index" json:"stock_product_id"`
	StorefrontId   string           `gorm:"type:char(36);index" json:"storefront_id"`
	AdjustmentType AdjustmentType   `gorm:"size:20" json:"adjustment_type"`
	Status         AdjustmentStatus `gorm:"size:20;index" json:"status"`
	Quantity       decimal.Decimal  `gorm:"type:decimal(20,4)" json:"quantity"`
	UnitCost       decimal.Decimal  `gorm:"type:decimal(20,4)" json:"unit_cost"`
	Reason         string           `gorm:"size:500" json:"reason"`
	CompletedAt    *time.Time       `gorm:"default:null" json:"completed_at"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *StockAdjustment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type NewStockAdjustment struct {
	ProductId      string          `json:"product_id" validate:"required"`
	StockProductId string          `json:"stock_product_id"`
	StorefrontId   string          `json:"storefront_id"`
	AdjustmentType AdjustmentType  `json:"adjustment_type" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Reason         string          `json:"reason"`
}

// CreateStockAdjustment opens a pending adjustment. Shrinkage types must
// carry a negative quantity; corrections may go either way.
func CreateStockAdjustment(ctx context.Context, input *NewStockAdjustment) (*StockAdjustment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.AdjustmentType.Valid() {
		return nil, fmt.Errorf("unknown adjustment type %q", input.AdjustmentType)
	}
	if input.Quantity.IsZero() {
		return nil, errors.New("adjustment quantity cannot be zero")
	}
	if input.AdjustmentType.IsShrinkage() && input.Quantity.IsPositive() {
		return nil, fmt.Errorf("%s adjustments must carry a negative quantity", input.AdjustmentType)
	}
	if !input.UnitCost.IsPositive() {
		return nil, errors.New("adjustment unit cost is required")
	}
	if (input.StockProductId == "") == (input.StorefrontId == "") {
		return nil, errors.New("adjustment needs exactly one of stock_product_id or storefront_id")
	}
	if input.StockProductId != "" {
		if err := utils.ValidateResourceId[StockProduct](ctx, businessId, input.StockProductId); err != nil {
			return nil, errors.New("stock batch not found")
		}
	}
	if input.StorefrontId != "" {
		if err := utils.ValidateResourceId[Storefront](ctx, businessId, input.StorefrontId); err != nil {
			return nil, errors.New("storefront not found")
		}
	}

	adjustment := &StockAdjustment{
		BusinessId:     businessId,
		ProductId:      input.ProductId,
		StockProductId: input.StockProductId,
		StorefrontId:   input.StorefrontId,
		AdjustmentType: input.AdjustmentType,
		Status:         AdjustmentStatusPending,
		Quantity:       input.Quantity,
		UnitCost:       input.UnitCost,
		Reason:         input.Reason,
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(adjustment).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionCreate, adjustment.ID, "StockAdjustment", nil, adjustment,
			fmt.Sprintf("%s adjustment of %s opened", adjustment.AdjustmentType, adjustment.Quantity))
	})
	if err != nil {
		return nil, err
	}
	return adjustment, nil
}

// CompleteStockAdjustment applies the signed quantity to the target ledger
// under a row lock. A delta that would push the ledger negative fails and
// the adjustment stays pending.
func CompleteStockAdjustment(ctx context.Context, id string) (*StockAdjustment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var adjustment *StockAdjustment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		adjustment = &StockAdjustment{}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND id = ?", businessId, id).
			First(adjustment).Error; err != nil {
			return err
		}
		if !adjustment.Status.CanTransitionTo(AdjustmentStatusCompleted) {
			return invalidTransition("adjustment", string(adjustment.Status), string(AdjustmentStatusCompleted))
		}

		if adjustment.StockProductId != "" {
			sp, err := lockStockProduct(tx, businessId, adjustment.StockProductId)
			if err != nil {
				return err
			}
			if err := applyStockProductDelta(tx, sp, adjustment.Quantity); err != nil {
				return err
			}
		} else {
			inv, err := lockStorefrontInventory(tx, businessId, adjustment.StorefrontId, adjustment.ProductId)
			if err != nil {
				return err
			}
			if err := applyStorefrontInventoryDelta(tx, inv, adjustment.Quantity); err != nil {
				return err
			}
		}

		now := time.Now()
		adjustment.Status = AdjustmentStatusCompleted
		adjustment.CompletedAt = &now
		if err := tx.Model(&StockAdjustment{}).Where("id = ?", adjustment.ID).
			Updates(map[string]interface{}{
				"status":       adjustment.Status,
				"completed_at": adjustment.CompletedAt,
			}).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionUpdate, adjustment.ID, "StockAdjustment", nil, adjustment,
			fmt.Sprintf("%s adjustment of %s applied", adjustment.AdjustmentType, adjustment.Quantity))
	})
	if err != nil {
		return nil, err
	}
	return adjustment, nil
}

// DeleteStockAdjustment removes a pending adjustment. Completed ones are
// part of the ledger history and cannot be deleted.
func DeleteStockAdjustment(ctx context.Context, id string) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	adjustment, err := utils.FetchModel[StockAdjustment](ctx, businessId, id)
	if err != nil {
		return err
	}
	if adjustment.Status != AdjustmentStatusPending {
		return errors.New("only pending adjustments can be deleted")
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(adjustment).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionDelete, adjustment.ID, "StockAdjustment", adjustment, nil,
			"pending adjustment deleted")
	})
}

func GetStockAdjustment(ctx context.Context, id string) (*StockAdjustment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockAdjustment](ctx, businessId, id)
}

func ListStockAdjustments(ctx context.Context, status AdjustmentStatus) ([]*StockAdjustment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("unknown adjustment status %q", status)
		}
		db = db.Where("status = ?", status)
	}
	var rows []*StockAdjustment
	err := db.Order("created_at DESC").Find(&rows).Error
	return rows, err
}
