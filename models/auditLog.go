package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	auditActionCreate = "CREATE"
	auditActionUpdate = "UPDATE"
	auditActionDelete = "DELETE"
)

// AuditLog is append-only. The BeforeUpdate/BeforeDelete hooks reject any
// mutation so the trail cannot be rewritten through the ORM.
type AuditLog struct {
	ID            string    `gorm:"type:char(36);primary_key" json:"id"`
	BusinessId    string    `gorm:"type:char(36);index;not null" json:"business_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceId   string    `gorm:"type:char(36);index" json:"reference_id"`
	ReferenceType string    `gorm:"size:100" json:"reference_type"`
	UserId        string    `gorm:"type:char(36);index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("audit log entries are immutable")
}

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return errors.New("audit log entries cannot be deleted")
}

// recordAudit writes an audit row inside the caller's transaction.
// Business/user identity come from the transaction's context.
func recordAudit(tx *gorm.DB,
	actionType string,
	referenceId string,
	referenceType string,
	before interface{},
	after interface{},
	description string) error {

	ctx := tx.Statement.Context

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	entry := AuditLog{
		BusinessId:    businessId,
		ActionType:    actionType,
		Before:        string(b),
		After:         string(a),
		Description:   description,
		ReferenceId:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}
	return tx.Create(&entry).Error
}

// ListAuditLogs returns the trail for one reference, newest first.
func ListAuditLogs(ctx context.Context, referenceType, referenceId string) ([]*AuditLog, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var entries []*AuditLog
	err := db.WithContext(ctx).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
