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

const DefaultReservationTTL = 30 * time.Minute

// StockReservation is a time-boxed hold on stock for one sale line. A
// storefront hold points at a storefront ledger row, a warehouse hold at a
// stock batch. Holds never mutate the underlying ledger; availability math
// subtracts active unexpired holds at read time.
type StockReservation struct {
	ID             string            `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId     string            `gorm:"type:char(36);index;not null" json:"business_id"`
	SaleId         string            `gorm:"type:char(36);index;not null" json:"sale_id"`
	SaleItemId     string            `gorm:"type:char(36);index" json:"sale_item_id"`
	ProductId      string            `gorm:"type:char(36);index;not null" json:"product_id"`
	StorefrontId   string            `gorm:"type:char(36);index" json:"storefront_id"`
	StockProductId string            `gorm:"type:char(36);index" json:"stock_product_id"`
	Quantity       decimal.Decimal   `gorm:"type:decimal(20,4)" json:"quantity"`
	Status         ReservationStatus `gorm:"size:20;index" json:"status"`
	ExpiresAt      time.Time         `gorm:"index" json:"expires_at"`
	ReleasedAt     *time.Time        `json:"released_at"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *StockReservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *StockReservation) IsWarehouse() bool {
	return r.StockProductId != ""
}

// activeHoldNow filters to holds that still bind stock.
func activeHoldNow(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where("status = ? AND expires_at > ?", ReservationStatusActive, now)
}

// reservedStorefrontQuantity sums active unexpired holds against one
// storefront ledger cell.
func reservedStorefrontQuantity(tx *gorm.DB, businessId, storefrontId, productId string, now time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := activeHoldNow(tx.Model(&StockReservation{}), now).
		Where("business_id = ? AND storefront_id = ? AND product_id = ?", businessId, storefrontId, productId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// reservedWarehouseQuantity sums active unexpired holds against one batch.
func reservedWarehouseQuantity(tx *gorm.DB, businessId, stockProductId string, now time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := activeHoldNow(tx.Model(&StockReservation{}), now).
		Where("business_id = ? AND stock_product_id = ?", businessId, stockProductId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// fulfilledTransferQuantity sums quantities already shipped out of a batch
// through fulfilled transfer requests. Warehouse on-hand is derived as
// recorded batch quantity minus this sum.
func fulfilledTransferQuantity(tx *gorm.DB, businessId, stockProductId string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := tx.Model(&TransferRequestItem{}).
		Joins("JOIN transfer_requests ON transfer_requests.id = transfer_request_items.transfer_request_id").
		Where("transfer_request_items.business_id = ? AND transfer_request_items.stock_product_id = ?", businessId, stockProductId).
		Where("transfer_requests.status = ?", TransferRequestStatusFulfilled).
		Select("COALESCE(SUM(transfer_request_items.quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

// AvailableStorefrontStock is on-hand minus active holds for one cell.
func AvailableStorefrontStock(ctx context.Context, storefrontId, productId string) (decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}
	db := config.GetDB().WithContext(ctx)
	onHand := decimal.Zero
	inv := StorefrontInventory{}
	err := db.Where("business_id = ? AND storefront_id = ? AND product_id = ?", businessId, storefrontId, productId).
		First(&inv).Error
	if err == nil {
		onHand = inv.Quantity
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, err
	}
	held, err := reservedStorefrontQuantity(db, businessId, storefrontId, productId, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	return onHand.Sub(held), nil
}

// AvailableWarehouseStock is the derived batch on-hand minus active holds.
func AvailableWarehouseStock(ctx context.Context, stockProductId string) (decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}
	db := config.GetDB().WithContext(ctx)
	sp, err := utils.FetchModel[StockProduct](ctx, businessId, stockProductId)
	if err != nil {
		return decimal.Zero, err
	}
	return availableWarehouseStockTx(db, businessId, sp)
}

func availableWarehouseStockTx(tx *gorm.DB, businessId string, sp *StockProduct) (decimal.Decimal, error) {
	shipped, err := fulfilledTransferQuantity(tx, businessId, sp.ID)
	if err != nil {
		return decimal.Zero, err
	}
	held, err := reservedWarehouseQuantity(tx, businessId, sp.ID, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	return sp.Quantity.Sub(shipped).Sub(held), nil
}

type NewStockReservation struct {
	SaleId         string          `json:"sale_id" validate:"required"`
	SaleItemId     string          `json:"sale_item_id"`
	ProductId      string          `json:"product_id" validate:"required"`
	StorefrontId   string          `json:"storefront_id"`
	StockProductId string          `json:"stock_product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	TTL            time.Duration   `json:"-"`
}

// CreateReservation places an active hold after an availability check. The
// storefront path locks the ledger row so concurrent holds on the same cell
// serialize in MySQL. The warehouse path has no single row that covers the
// derived availability, so it serializes through a redis tenant lock.
func CreateReservation(ctx context.Context, input *NewStockReservation) (*StockReservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, errors.New("reservation quantity must be positive")
	}
	if !input.Quantity.Equal(input.Quantity.Truncate(0)) {
		return nil, &FractionalQuantityError{SaleItemId: input.SaleItemId, Quantity: input.Quantity}
	}
	if (input.StorefrontId == "") == (input.StockProductId == "") {
		return nil, errors.New("reservation needs exactly one of storefront_id or stock_product_id")
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	if input.StockProductId != "" {
		release, err := utils.TenantLock(ctx, businessId, "warehouse", "stockReservation", "CreateReservation")
		if err != nil {
			return nil, err
		}
		defer release()
	}

	db := config.GetDB()
	var reservation *StockReservation
	if config.DebugFlag("DEBUG_RESERVATION") {
		config.GetLogger().WithFields(map[string]interface{}{
			"sale_id":          input.SaleId,
			"product_id":       input.ProductId,
			"storefront_id":    input.StorefrontId,
			"stock_product_id": input.StockProductId,
			"quantity":         input.Quantity.String(),
		}).Debug("creating stock reservation")
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if input.StorefrontId != "" {
			inv, err := lockStorefrontInventory(tx, businessId, input.StorefrontId, input.ProductId)
			if err != nil {
				return err
			}
			held, err := reservedStorefrontQuantity(tx, businessId, input.StorefrontId, input.ProductId, now)
			if err != nil {
				return err
			}
			available := inv.Quantity.Sub(held)
			if available.LessThan(input.Quantity) {
				return &InsufficientStockError{
					StorefrontId: input.StorefrontId,
					ProductId:    input.ProductId,
					Available:    available,
					Requested:    input.Quantity,
				}
			}
		} else {
			sp, err := lockStockProduct(tx, businessId, input.StockProductId)
			if err != nil {
				return err
			}
			available, err := availableWarehouseStockTx(tx, businessId, sp)
			if err != nil {
				return err
			}
			if available.LessThan(input.Quantity) {
				return &InsufficientStockError{
					StockProductId: input.StockProductId,
					ProductId:      input.ProductId,
					Available:      available,
					Requested:      input.Quantity,
				}
			}
		}

		reservation = &StockReservation{
			BusinessId:     businessId,
			SaleId:         input.SaleId,
			SaleItemId:     input.SaleItemId,
			ProductId:      input.ProductId,
			StorefrontId:   input.StorefrontId,
			StockProductId: input.StockProductId,
			Quantity:       input.Quantity,
			Status:         ReservationStatusActive,
			ExpiresAt:      now.Add(ttl),
		}
		return tx.Create(reservation).Error
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// transitionReservation moves a hold to a terminal status inside tx,
// enforcing the status machine. Releasing an already-released hold is a
// no-op so sweeper and explicit release can race safely.
func transitionReservation(tx *gorm.DB, r *StockReservation, to ReservationStatus) error {
	if r.Status == to {
		return nil
	}
	if !r.Status.CanTransitionTo(to) {
		return invalidTransition("reservation", string(r.Status), string(to))
	}
	updates := map[string]interface{}{"status": to}
	if to == ReservationStatusReleased || to == ReservationStatusCancelled {
		now := time.Now()
		updates["released_at"] = now
		r.ReleasedAt = &now
	}
	if err := tx.Model(&StockReservation{}).Where("id = ?", r.ID).
		Updates(updates).Error; err != nil {
		return err
	}
	r.Status = to
	return nil
}

// releaseSaleReservations releases every active hold for a sale inside tx.
func releaseSaleReservations(tx *gorm.DB, businessId, saleId string, to ReservationStatus) error {
	var holds []*StockReservation
	if err := tx.Where("business_id = ? AND sale_id = ? AND status = ?", businessId, saleId, ReservationStatusActive).
		Find(&holds).Error; err != nil {
		return err
	}
	for _, r := range holds {
		if err := transitionReservation(tx, r, to); err != nil {
			return err
		}
	}
	return nil
}

// purgeSaleReservations releases any still-active holds and then deletes
// every reservation row for the sale. Used by abandoned-cart cleanup,
// where the sale itself is about to be removed.
func purgeSaleReservations(tx *gorm.DB, businessId, saleId string) error {
	if err := releaseSaleReservations(tx, businessId, saleId, ReservationStatusReleased); err != nil {
		return err
	}
	return tx.Where("business_id = ? AND sale_id = ?", businessId, saleId).
		Delete(&StockReservation{}).Error
}

// commitSaleReservations marks every active hold for a sale as committed,
// failing if any hold already expired out from under the sale.
func commitSaleReservations(tx *gorm.DB, businessId, saleId string, now time.Time) ([]*StockReservation, error) {
	var holds []*StockReservation
	if err := tx.Where("business_id = ? AND sale_id = ? AND status = ?", businessId, saleId, ReservationStatusActive).
		Find(&holds).Error; err != nil {
		return nil, err
	}
	for _, r := range holds {
		if !r.ExpiresAt.After(now) {
			return nil, fmt.Errorf("reservation %s for sale %s expired at %s", r.ID, saleId, r.ExpiresAt.Format(time.RFC3339))
		}
		if err := transitionReservation(tx, r, ReservationStatusCommitted); err != nil {
			return nil, err
		}
	}
	return holds, nil
}

// ReleaseReservation releases a single hold by id.
func ReleaseReservation(ctx context.Context, id string) (*StockReservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	r, err := utils.FetchModel[StockReservation](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return transitionReservation(tx, r, ReservationStatusReleased)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ReleaseExpiredReservations flips every active hold past its expiry to
// released, across all tenants, and returns how many rows changed. Run by
// the sweeper job; the scan bypasses the tenant guard.
func ReleaseExpiredReservations(ctx context.Context, dryRun bool) (int64, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	db := config.GetDB().WithContext(ctx)
	now := time.Now()

	if dryRun {
		var n int64
		err := db.Model(&StockReservation{}).
			Where("status = ? AND expires_at <= ?", ReservationStatusActive, now).
			Count(&n).Error
		return n, err
	}

	res := db.Model(&StockReservation{}).
		Where("status = ? AND expires_at <= ?", ReservationStatusActive, now).
		Updates(map[string]interface{}{
			"status":      ReservationStatusReleased,
			"released_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		config.GetLogger().WithFields(map[string]interface{}{
			"released": res.RowsAffected,
		}).Info("released expired stock reservations")
	}
	return res.RowsAffected, nil
}

func ListReservationsForSale(ctx context.Context, saleId string) ([]*StockReservation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	var rows []*StockReservation
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND sale_id = ?", businessId, saleId).
		Order("created_at").
		Find(&rows).Error
	return rows, err
}
