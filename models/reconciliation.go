package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationReport is a persisted snapshot of the drift check for one
// product. Read-only over the ledgers; a non-zero delta means the books
// and the shelves disagree and somebody should count.
type ReconciliationReport struct {
	ID                     string          `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId             string          `gorm:"type:char(36);index;not null" json:"business_id"`
	ProductId              string          `gorm:"type:char(36);index;not null" json:"product_id"`
	RecordedBatchQuantity  decimal.Decimal `gorm:"type:decimal(20,4)" json:"recorded_batch_quantity"`
	WarehouseOnHand        decimal.Decimal `gorm:"type:decimal(20,4)" json:"warehouse_on_hand"`
	StorefrontOnHand       decimal.Decimal `gorm:"type:decimal(20,4)" json:"storefront_on_hand"`
	ShrinkageUnits         decimal.Decimal `gorm:"type:decimal(20,4)" json:"shrinkage_units"`
	CorrectionUnits        decimal.Decimal `gorm:"type:decimal(20,4)" json:"correction_units"`
	ReservationLinkedUnits decimal.Decimal `gorm:"type:decimal(20,4)" json:"reservation_linked_units"`
	CalculatedBaseline     decimal.Decimal `gorm:"type:decimal(20,4)" json:"calculated_baseline"`
	Delta                  decimal.Decimal `gorm:"type:decimal(20,4)" json:"delta"`
	RunAt                  time.Time       `gorm:"index" json:"run_at"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (r *ReconciliationReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// productLedgerSums collects the per-product inputs of the drift formula.
type productLedgerSums struct {
	recorded     decimal.Decimal
	storefront   decimal.Decimal
	shrinkage    decimal.Decimal
	correction   decimal.Decimal
	reserved     decimal.Decimal
	hasTransfers bool
}

func collectProductLedgerSums(tx *gorm.DB, businessId, productId string, now time.Time) (*productLedgerSums, error) {
	sums := &productLedgerSums{}

	var recorded decimal.NullDecimal
	if err := tx.Model(&StockProduct{}).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&recorded).Error; err != nil {
		return nil, err
	}
	sums.recorded = recorded.Decimal

	var storefront decimal.NullDecimal
	if err := tx.Model(&StorefrontInventory{}).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&storefront).Error; err != nil {
		return nil, err
	}
	sums.storefront = storefront.Decimal

	// Shrinkage and correction only count once applied to a ledger.
	var shrinkage decimal.NullDecimal
	if err := tx.Model(&StockAdjustment{}).
		Where("business_id = ? AND product_id = ? AND status = ?", businessId, productId, AdjustmentStatusCompleted).
		Where("adjustment_type IN ?", []AdjustmentType{AdjustmentTypeDamage, AdjustmentTypeTheft}).
		Select("COALESCE(SUM(ABS(quantity)), 0)").
		Scan(&shrinkage).Error; err != nil {
		return nil, err
	}
	sums.shrinkage = shrinkage.Decimal

	var correction decimal.NullDecimal
	if err := tx.Model(&StockAdjustment{}).
		Where("business_id = ? AND product_id = ? AND status = ? AND adjustment_type = ?",
			businessId, productId, AdjustmentStatusCompleted, AdjustmentTypeCorrection).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&correction).Error; err != nil {
		return nil, err
	}
	sums.correction = correction.Decimal

	var reserved decimal.NullDecimal
	if err := activeHoldNow(tx.Model(&StockReservation{}), now).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&reserved).Error; err != nil {
		return nil, err
	}
	sums.reserved = reserved.Decimal

	var transferLines int64
	if err := tx.Model(&TransferRequestItem{}).
		Joins("JOIN transfer_requests ON transfer_requests.id = transfer_request_items.transfer_request_id").
		Where("transfer_request_items.business_id = ? AND transfer_request_items.product_id = ?", businessId, productId).
		Where("transfer_requests.status = ?", TransferRequestStatusFulfilled).
		Count(&transferLines).Error; err != nil {
		return nil, err
	}
	sums.hasTransfers = transferLines > 0

	return sums, nil
}

// buildReconciliationReport evaluates the drift formula for one product.
// Warehouse on-hand is derived as recorded intake minus what has moved to
// storefronts; with no transfers on record the product never left the
// warehouse and the recorded quantity stands as-is.
func buildReconciliationReport(tx *gorm.DB, businessId, productId string, now time.Time) (*ReconciliationReport, error) {
	sums, err := collectProductLedgerSums(tx, businessId, productId, now)
	if err != nil {
		return nil, err
	}

	warehouseOnHand := sums.recorded
	storefrontOnHand := sums.storefront
	if sums.hasTransfers {
		warehouseOnHand = sums.recorded.Sub(sums.storefront)
	} else {
		storefrontOnHand = decimal.Zero
	}

	baseline := warehouseOnHand.
		Add(storefrontOnHand).
		Sub(sums.shrinkage).
		Add(sums.correction).
		Sub(sums.reserved)

	return &ReconciliationReport{
		BusinessId:             businessId,
		ProductId:              productId,
		RecordedBatchQuantity:  sums.recorded,
		WarehouseOnHand:        warehouseOnHand,
		StorefrontOnHand:       storefrontOnHand,
		ShrinkageUnits:         sums.shrinkage,
		CorrectionUnits:        sums.correction,
		ReservationLinkedUnits: sums.reserved,
		CalculatedBaseline:     baseline,
		Delta:                  sums.recorded.Sub(baseline),
		RunAt:                  now,
	}, nil
}

// ReconcileProduct runs the drift check for one product without
// persisting anything.
func ReconcileProduct(ctx context.Context, productId string) (*ReconciliationReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[Product](ctx, businessId, productId); err != nil {
		return nil, errors.New("product not found")
	}
	return buildReconciliationReport(config.GetDB().WithContext(ctx), businessId, productId, time.Now())
}

// RunReconciliationChecks evaluates every product of the business and
// persists one report row per product. Returns the reports with non-zero
// drift first so callers can surface the interesting ones.
func RunReconciliationChecks(ctx context.Context) ([]*ReconciliationReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	now := time.Now()
	var reports []*ReconciliationReport

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var productIds []string
		if err := tx.Model(&Product{}).
			Where("business_id = ?", businessId).
			Order("id").
			Pluck("id", &productIds).Error; err != nil {
			return err
		}
		for _, productId := range productIds {
			report, err := buildReconciliationReport(tx, businessId, productId, now)
			if err != nil {
				return err
			}
			if err := tx.Create(report).Error; err != nil {
				return err
			}
			reports = append(reports, report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	drifted := 0
	for _, r := range reports {
		if !r.Delta.IsZero() {
			drifted++
		}
	}
	if drifted > 0 {
		config.GetLogger().WithFields(map[string]interface{}{
			"business_id": businessId,
			"products":    len(reports),
			"drifted":     drifted,
		}).Warn("reconciliation found stock drift")
	}

	// new rows invalidate the cached listing
	_ = config.RemoveRedisKey(reconciliationCacheKey(businessId))
	_ = config.SetRedisValue("reconciliation_last_run:"+businessId, now.Format(time.RFC3339), 0)

	// non-zero deltas first, stable within each group
	ordered := make([]*ReconciliationReport, 0, len(reports))
	for _, r := range reports {
		if !r.Delta.IsZero() {
			ordered = append(ordered, r)
		}
	}
	for _, r := range reports {
		if r.Delta.IsZero() {
			ordered = append(ordered, r)
		}
	}
	return ordered, nil
}

func reconciliationCacheKey(businessId string) string {
	return "reconciliation_reports:" + businessId
}

// ListReconciliationReports returns the latest persisted reports. The
// default page is cached until the next run invalidates it.
func ListReconciliationReports(ctx context.Context, limit int) ([]*ReconciliationReport, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	useCache := limit <= 0
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var rows []*ReconciliationReport
	if useCache {
		if hit, err := config.GetRedisObject(reconciliationCacheKey(businessId), &rows); err == nil && hit {
			return rows, nil
		}
	}
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("run_at DESC, product_id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if useCache {
		_ = config.SetRedisObject(reconciliationCacheKey(businessId), rows, 10*time.Minute)
	}
	return rows, err
}
