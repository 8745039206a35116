package models

import (
	"bitbucket.org/mmdatafocus/retailpos_backend/config"
)

// MigrateTable keeps the schema in sync at startup. Order matters only
// for readability; gorm resolves the constraints.
func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Business{},
		&Storefront{},
		&Supplier{},
		&Product{},
		&Customer{},
		&StockProduct{},
		&StorefrontInventory{},
		&StockReservation{},
		&Sale{},
		&SaleItem{},
		&Refund{},
		&RefundItem{},
		&StockAdjustment{},
		&TransferRequest{},
		&TransferRequestItem{},
		&ReconciliationReport{},
		&AuditLog{},
	)
}
