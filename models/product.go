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

type Product struct {
	ID         string    `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Sku        string    `gorm:"size:100;index" json:"sku"`
	Barcode    string    `gorm:"size:100" json:"barcode"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Supplier struct {
	ID         string    `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId string    `gorm:"type:char(36);index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Phone      string    `gorm:"size:50" json:"phone"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type NewProduct struct {
	Name    string `json:"name" validate:"required"`
	Sku     string `json:"sku"`
	Barcode string `json:"barcode"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	product := Product{
		BusinessId: businessId,
		Name:       input.Name,
		Sku:        input.Sku,
		Barcode:    input.Barcode,
		IsActive:   utils.BoolPtr(true),
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func CreateSupplier(ctx context.Context, name, phone string) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if name == "" {
		return nil, errors.New("supplier name is required")
	}
	db := config.GetDB()
	supplier := Supplier{BusinessId: businessId, Name: name, Phone: phone}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func GetProduct(ctx context.Context, id string) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Product](ctx, businessId, id)
}

func ListProducts(ctx context.Context) ([]*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Product](ctx, businessId)
}
