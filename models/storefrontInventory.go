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

// StorefrontInventory is the per-storefront on-hand ledger cell for one
// product. Rows are created lazily on the first transfer into the
// storefront and never deleted.
type StorefrontInventory struct {
	ID           string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId   string          `gorm:"type:char(36);uniqueIndex:idx_storefront_product;not null" json:"business_id"`
	StorefrontId string          `gorm:"type:char(36);uniqueIndex:idx_storefront_product;not null" json:"storefront_id"`
	ProductId    string          `gorm:"type:char(36);uniqueIndex:idx_storefront_product;not null" json:"product_id"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (si *StorefrontInventory) BeforeCreate(tx *gorm.DB) error {
	if si.ID == "" {
		si.ID = uuid.NewString()
	}
	return nil
}

func GetStorefrontInventory(ctx context.Context, storefrontId, productId string) (*StorefrontInventory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var inv StorefrontInventory
	err := db.WithContext(ctx).
		Where("business_id = ? AND storefront_id = ? AND product_id = ?", businessId, storefrontId, productId).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func ListStorefrontInventory(ctx context.Context, storefrontId string) ([]*StorefrontInventory, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var rows []*StorefrontInventory
	err := db.WithContext(ctx).
		Where("business_id = ? AND storefront_id = ?", businessId, storefrontId).
		Order("product_id").
		Find(&rows).Error
	return rows, err
}

// lockStorefrontInventory fetches the ledger row FOR UPDATE, creating a
// zero-quantity row first if none exists yet.
func lockStorefrontInventory(tx *gorm.DB, businessId, storefrontId, productId string) (*StorefrontInventory, error) {
	var inv StorefrontInventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND storefront_id = ? AND product_id = ?", businessId, storefrontId, productId).
		First(&inv).Error
	if err == nil {
		return &inv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	inv = StorefrontInventory{
		BusinessId:   businessId,
		StorefrontId: storefrontId,
		ProductId:    productId,
		Quantity:     decimal.Zero,
	}
	if err := tx.Create(&inv).Error; err != nil {
		return nil, fmt.Errorf("create storefront ledger row: %w", err)
	}
	// re-read under lock so concurrent creators serialize on the row
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", inv.ID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// applyStorefrontInventoryDelta mutates the locked ledger row, rejecting
// any result below zero.
func applyStorefrontInventoryDelta(tx *gorm.DB, inv *StorefrontInventory, delta decimal.Decimal) error {
	next := inv.Quantity.Add(delta)
	if next.IsNegative() {
		return &NegativeStockError{LedgerType: "storefront_inventory", LedgerId: inv.ID, Resulting: next}
	}
	if err := tx.Model(&StorefrontInventory{}).Where("id = ?", inv.ID).
		Update("quantity", next).Error; err != nil {
		return err
	}
	inv.Quantity = next
	return nil
}
