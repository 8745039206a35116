package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger movements driven by sale lifecycle transitions. Each command runs
// inside the caller's transaction and locks every ledger row it touches.

// applySaleStockForCompletion decrements the ledgers for every line when a
// sale leaves draft. Storefront lines hit the storefront ledger cell,
// warehouse lines hit the batch row. The committed holds already proved
// availability, but the guard stays: a negative result aborts the checkout.
func applySaleStockForCompletion(tx *gorm.DB, sale *Sale) error {
	for i := range sale.Items {
		item := &sale.Items[i]
		if err := applySaleItemDelta(tx, sale, item, item.Quantity.Neg()); err != nil {
			return fmt.Errorf("sale %s line %s: %w", sale.ID, item.ID, err)
		}
	}
	return nil
}

// applySaleItemRestock returns quantity to the ledger a line was sold
// from. Used by refunds with restock and by cancellation of committed
// sales.
func applySaleItemRestock(tx *gorm.DB, sale *Sale, item *SaleItem, quantity decimal.Decimal) error {
	if err := applySaleItemDelta(tx, sale, item, quantity); err != nil {
		return fmt.Errorf("restock sale %s line %s: %w", sale.ID, item.ID, err)
	}
	return nil
}

func applySaleItemDelta(tx *gorm.DB, sale *Sale, item *SaleItem, delta decimal.Decimal) error {
	if sale.IsWarehouseSale() {
		sp, err := lockStockProduct(tx, sale.BusinessId, item.StockProductId)
		if err != nil {
			return err
		}
		return applyStockProductDelta(tx, sp, delta)
	}
	inv, err := lockStorefrontInventory(tx, sale.BusinessId, sale.StorefrontId, item.ProductId)
	if err != nil {
		return err
	}
	return applyStorefrontInventoryDelta(tx, inv, delta)
}
