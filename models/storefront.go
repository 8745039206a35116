package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Storefront is a retail location selling from its own per-product ledger.
// Sales without a storefront sell straight out of the warehouse batches.
type Storefront struct {
	ID         string    `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Location   string    `gorm:"size:255" json:"location"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Storefront) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type NewStorefront struct {
	Name     string `json:"name" validate:"required"`
	Location string `json:"location"`
}

func CreateStorefront(ctx context.Context, input *NewStorefront) (*Storefront, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	storefront := Storefront{
		BusinessId: businessId,
		Name:       input.Name,
		Location:   input.Location,
		IsActive:   utils.BoolPtr(true),
	}
	if err := db.WithContext(ctx).Create(&storefront).Error; err != nil {
		return nil, err
	}
	return &storefront, nil
}

func GetStorefront(ctx context.Context, id string) (*Storefront, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Storefront](ctx, businessId, id)
}

func ListStorefronts(ctx context.Context) ([]*Storefront, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Storefront](ctx, businessId)
}
