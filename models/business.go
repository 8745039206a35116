package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is the tenant root. Every other row carries its id.
type Business struct {
	ID        string    `gorm:"type:char(36);primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	Timezone  string    `gorm:"size:64;default:'UTC'" json:"timezone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type NewBusiness struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	business := Business{
		Name:  input.Name,
		Email: input.Email,
	}
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(ctx context.Context, id string) (*Business, error) {
	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", id).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// AllBusinessIds lists every tenant id. Used by the nightly jobs.
func AllBusinessIds(ctx context.Context) ([]string, error) {
	db := config.GetDB()
	var ids []string
	if err := db.WithContext(ctx).Model(&Business{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
