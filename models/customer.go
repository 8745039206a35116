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

// Customer carries a running credit balance: CREDIT sales increase it,
// refunds against CREDIT sales decrease it. Every balance change is audited.
type Customer struct {
	ID            string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId    string          `gorm:"type:char(36);index;not null" json:"business_id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Phone         string          `gorm:"size:50" json:"phone"`
	Email         string          `gorm:"size:255" json:"email"`
	CreditBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_balance"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type NewCustomer struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	db := config.GetDB()
	customer := Customer{
		BusinessId: businessId,
		Name:       input.Name,
		Phone:      input.Phone,
		Email:      input.Email,
	}
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id string) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Customer](ctx, businessId, id)
}

func ListCustomers(ctx context.Context) ([]*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Customer](ctx, businessId)
}

// applyCustomerBalance adds delta to the customer's credit balance inside the
// caller's transaction, locking the row, and writes an audit entry.
func applyCustomerBalance(tx *gorm.DB, businessId, customerId string, delta decimal.Decimal, reference string, referenceId string) error {
	if delta.IsZero() {
		return nil
	}
	var customer Customer
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, customerId).
		First(&customer).Error; err != nil {
		return fmt.Errorf("lock customer for balance update: %w", err)
	}
	before := customer.CreditBalance
	after := before.Add(delta)
	if err := tx.Model(&Customer{}).Where("id = ?", customer.ID).
		Update("credit_balance", after).Error; err != nil {
		return err
	}
	return recordAudit(tx, auditActionUpdate, customer.ID, "Customer",
		map[string]string{"credit_balance": before.String()},
		map[string]string{"credit_balance": after.String()},
		fmt.Sprintf("customer balance %s by %s (%s %s)", direction(delta), delta.Abs().String(), reference, referenceId))
}

func direction(d decimal.Decimal) string {
	if d.IsNegative() {
		return "decreased"
	}
	return "increased"
}
