package entity

import "time"

// ActivityLog audit trail of reconciliation actions, never deleted
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_recon_activity_entity"` // submission/batch/settlement
	EntityID   uint64 `json:"entity_id" gorm:"not null;index:idx_recon_activity_entity"`
	EntityCode string `json:"entity_code" gorm:"size:50"`

	Action     string `json:"action" gorm:"size:50;not null"` // create/status_change/add_member/remove_member/payment_initiated/payment_applied/payment_declined
	FromStatus string `json:"from_status" gorm:"size:20"`
	ToStatus   string `json:"to_status" gorm:"size:20"`
	Content    string `json:"content" gorm:"type:text"`

	OperatorID   string    `json:"operator_id" gorm:"size:32"`
	OperatorName string    `json:"operator_name" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "recon_activity_logs"
}

const (
	EntityTypeSubmission = "submission"
	EntityTypeBatch      = "batch"
	EntityTypeSettlement = "settlement"
)

// All returns every model that the service migrates.
func All() []interface{} {
	return []interface{}{
		&PaymentSubmission{},
		&PaymentSubmissionBatch{},
		&SettlementBatch{},
		&SettlementPayment{},
		&ActivityLog{},
	}
}
