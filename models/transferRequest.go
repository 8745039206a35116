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

// TransferRequest moves stock from warehouse batches to a storefront.
// Fulfillment increments the storefront ledger; the batch row keeps its
// recorded intake quantity and warehouse on-hand is derived by subtracting
// fulfilled transfer lines. Reopening a fulfilled request needs a manager
// override and pulls the stock back out of the storefront.
type TransferRequest struct {
	ID           string                `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId   string                `gorm:"type:char(36);index;not null" json:"business_id"`
	StorefrontId string                `gorm:"type:char(36);index;not null" json:"storefront_id"`
	Status       TransferRequestStatus `gorm:"size:20;index" json:"status"`
	AssignedTo   string                `gorm:"type:char(36)" json:"assigned_to"`
	Notes        string                `gorm:"size:500" json:"notes"`
	FulfilledAt  *time.Time            `gorm:"default:null" json:"fulfilled_at"`
	Items        []TransferRequestItem `gorm:"foreignKey:TransferRequestId" json:"items"`
	CreatedAt    time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *TransferRequest) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type TransferRequestItem struct {
	ID                string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId        string          `gorm:"type:char(36);index;not null" json:"business_id"`
	TransferRequestId string          `gorm:"type:char(36);index;not null" json:"transfer_request_id"`
	ProductId         string          `gorm:"type:char(36);index;not null" json:"product_id"`
	StockProductId    string          `gorm:"type:char(36);index;not null" json:"stock_product_id"`
	Quantity          decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (ti *TransferRequestItem) BeforeCreate(tx *gorm.DB) error {
	if ti.ID == "" {
		ti.ID = uuid.NewString()
	}
	return nil
}

type NewTransferRequestItem struct {
	ProductId      string          `json:"product_id" validate:"required"`
	StockProductId string          `json:"stock_product_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
}

type NewTransferRequest struct {
	StorefrontId string                   `json:"storefront_id" validate:"required"`
	Notes        string                   `json:"notes"`
	Items        []NewTransferRequestItem `json:"items" validate:"required,min=1"`
}

func CreateTransferRequest(ctx context.Context, input *NewTransferRequest) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Storefront](ctx, businessId, input.StorefrontId); err != nil {
		return nil, errors.New("storefront not found")
	}
	for _, line := range input.Items {
		if !line.Quantity.IsPositive() {
			return nil, errors.New("transfer line quantity must be positive")
		}
		if !line.Quantity.Equal(line.Quantity.Truncate(0)) {
			return nil, errors.New("transfer line quantity must be a whole number")
		}
		if err := utils.ValidateResourceId[StockProduct](ctx, businessId, line.StockProductId); err != nil {
			return nil, fmt.Errorf("stock batch %s not found", line.StockProductId)
		}
	}

	request := &TransferRequest{
		BusinessId:   businessId,
		StorefrontId: input.StorefrontId,
		Status:       TransferRequestStatusNew,
		Notes:        input.Notes,
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(request).Error; err != nil {
			return err
		}
		for _, line := range input.Items {
			item := TransferRequestItem{
				BusinessId:        businessId,
				TransferRequestId: request.ID,
				ProductId:         line.ProductId,
				StockProductId:    line.StockProductId,
				Quantity:          line.Quantity,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			request.Items = append(request.Items, item)
		}
		return recordAudit(tx, auditActionCreate, request.ID, "TransferRequest", nil, request,
			fmt.Sprintf("transfer request opened for storefront %s", request.StorefrontId))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// AssignTransferRequest hands a new request to a warehouse picker.
func AssignTransferRequest(ctx context.Context, id, assigneeId string) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if assigneeId == "" {
		return nil, errors.New("assignee is required")
	}

	db := config.GetDB()
	var request *TransferRequest
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = lockTransferRequest(tx, businessId, id)
		if err != nil {
			return err
		}
		if !request.Status.CanTransitionTo(TransferRequestStatusAssigned) {
			return invalidTransition("transfer request", string(request.Status), string(TransferRequestStatusAssigned))
		}
		request.Status = TransferRequestStatusAssigned
		request.AssignedTo = assigneeId
		return tx.Model(&TransferRequest{}).Where("id = ?", request.ID).
			Updates(map[string]interface{}{
				"status":      request.Status,
				"assigned_to": request.AssignedTo,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// FulfillTransferRequest ships an assigned request: every line is checked
// against what its batch still has to give and the destination storefront
// ledger is incremented. The whole fulfillment serializes through the
// warehouse tenant lock because the availability check spans derived sums.
func FulfillTransferRequest(ctx context.Context, id string) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	release, err := utils.TenantLock(ctx, businessId, "warehouse", "transferRequest", "FulfillTransferRequest")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	var request *TransferRequest
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = lockTransferRequest(tx, businessId, id)
		if err != nil {
			return err
		}
		if !request.Status.CanTransitionTo(TransferRequestStatusFulfilled) {
			return invalidTransition("transfer request", string(request.Status), string(TransferRequestStatusFulfilled))
		}

		// lines of this request are not yet Fulfilled, so the derived
		// availability cannot see them; carry their draw forward here
		shippedByBatch := make(map[string]decimal.Decimal)
		for i := range request.Items {
			line := &request.Items[i]
			sp, err := lockStockProduct(tx, businessId, line.StockProductId)
			if err != nil {
				return err
			}
			available, err := availableWarehouseStockTx(tx, businessId, sp)
			if err != nil {
				return err
			}
			available = available.Sub(shippedByBatch[line.StockProductId])
			if available.LessThan(line.Quantity) {
				return &InsufficientStockError{
					StockProductId: line.StockProductId,
					ProductId:      line.ProductId,
					Available:      available,
					Requested:      line.Quantity,
				}
			}
			shippedByBatch[line.StockProductId] = shippedByBatch[line.StockProductId].Add(line.Quantity)
			inv, err := lockStorefrontInventory(tx, businessId, request.StorefrontId, line.ProductId)
			if err != nil {
				return err
			}
			if err := applyStorefrontInventoryDelta(tx, inv, line.Quantity); err != nil {
				return err
			}
		}

		now := time.Now()
		request.Status = TransferRequestStatusFulfilled
		request.FulfilledAt = &now
		if err := tx.Model(&TransferRequest{}).Where("id = ?", request.ID).
			Updates(map[string]interface{}{
				"status":       request.Status,
				"fulfilled_at": request.FulfilledAt,
			}).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionUpdate, request.ID, "TransferRequest", nil, request,
			fmt.Sprintf("transfer fulfilled into storefront %s", request.StorefrontId))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ReopenTransferRequest undoes a fulfillment. Requires the manager
// override flag; the stock already moved, so the storefront increments are
// reversed and fail if the storefront has since sold below them.
func ReopenTransferRequest(ctx context.Context, id string, managerOverride bool) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !managerOverride {
		return nil, ErrManagerOverrideRequired
	}

	db := config.GetDB()
	var request *TransferRequest
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = lockTransferRequest(tx, businessId, id)
		if err != nil {
			return err
		}
		if request.Status != TransferRequestStatusFulfilled {
			return invalidTransition("transfer request", string(request.Status), string(TransferRequestStatusNew))
		}

		for i := range request.Items {
			line := &request.Items[i]
			inv, err := lockStorefrontInventory(tx, businessId, request.StorefrontId, line.ProductId)
			if err != nil {
				return err
			}
			if err := applyStorefrontInventoryDelta(tx, inv, line.Quantity.Neg()); err != nil {
				return err
			}
		}

		request.Status = TransferRequestStatusNew
		request.FulfilledAt = nil
		request.AssignedTo = ""
		if err := tx.Model(&TransferRequest{}).Where("id = ?", request.ID).
			Updates(map[string]interface{}{
				"status":       request.Status,
				"fulfilled_at": nil,
				"assigned_to":  "",
			}).Error; err != nil {
			return err
		}
		return recordAudit(tx, auditActionUpdate, request.ID, "TransferRequest", nil, request,
			"fulfilled transfer reopened with manager override")
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// CancelTransferRequest voids a request that has not shipped. Fulfilled
// requests must be reopened first so the moved stock is accounted for.
func CancelTransferRequest(ctx context.Context, id string) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var request *TransferRequest
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = lockTransferRequest(tx, businessId, id)
		if err != nil {
			return err
		}
		if request.Status == TransferRequestStatusFulfilled {
			return errors.New("fulfilled transfer requests must be reopened before cancellation")
		}
		if !request.Status.CanTransitionTo(TransferRequestStatusCancelled) {
			return invalidTransition("transfer request", string(request.Status), string(TransferRequestStatusCancelled))
		}
		request.Status = TransferRequestStatusCancelled
		return tx.Model(&TransferRequest{}).Where("id = ?", request.ID).
			Update("status", request.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// FulfillManualTransfer moves quantity into a storefront outside any
// request, for ad-hoc replenishment from a named batch. Same availability
// rules as request fulfillment, recorded as a single-line fulfilled
// request so reconciliation sees it.
func FulfillManualTransfer(ctx context.Context, storefrontId, stockProductId string, quantity decimal.Decimal) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !quantity.IsPositive() {
		return nil, errors.New("transfer quantity must be positive")
	}
	sp, err := utils.FetchModel[StockProduct](ctx, businessId, stockProductId)
	if err != nil {
		return nil, err
	}

	request, err := CreateTransferRequest(ctx, &NewTransferRequest{
		StorefrontId: storefrontId,
		Notes:        "manual replenishment",
		Items: []NewTransferRequestItem{{
			ProductId:      sp.ProductId,
			StockProductId: stockProductId,
			Quantity:       quantity,
		}},
	})
	if err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	if userId == "" {
		userId = "system"
	}
	if _, err := AssignTransferRequest(ctx, request.ID, userId); err != nil {
		return nil, err
	}
	return FulfillTransferRequest(ctx, request.ID)
}

func lockTransferRequest(tx *gorm.DB, businessId, id string) (*TransferRequest, error) {
	var request TransferRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		First(&request).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("business_id = ? AND transfer_request_id = ?", businessId, id).
		Order("created_at").
		Find(&request.Items).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func GetTransferRequest(ctx context.Context, id string) (*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var request TransferRequest
	err := db.WithContext(ctx).Preload("Items").
		Where("business_id = ? AND id = ?", businessId, id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func ListTransferRequests(ctx context.Context, status TransferRequestStatus) ([]*TransferRequest, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB().WithContext(ctx).Where("business_id = ?", businessId)
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("unknown transfer request status %q", status)
		}
		db = db.Where("status = ?", status)
	}
	var rows []*TransferRequest
	err := db.Preload("Items").Order("created_at DESC").Find(&rows).Error
	return rows, err
}
