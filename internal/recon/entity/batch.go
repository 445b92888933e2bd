package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentSubmissionBatch shipper-level settlement session grouping submissions
type PaymentSubmissionBatch struct {
	ID                uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Code              string          `json:"code" gorm:"size:32;uniqueIndex;not null"`
	ShipperID         uint64          `json:"shipper_id" gorm:"not null;index"`
	DeclaredAmount    decimal.Decimal `json:"declared_amount" gorm:"type:numeric(15,2);not null;default:0"`
	TotalSystemAmount decimal.Decimal `json:"total_system_amount" gorm:"type:numeric(15,2);not null;default:0"`
	TotalActualAmount decimal.Decimal `json:"total_actual_amount" gorm:"type:numeric(15,2);not null;default:0"`
	TotalOrders       int             `json:"total_orders" gorm:"not null;default:0"`
	Status            string          `json:"status" gorm:"size:20;not null;index"` // PENDING/CHECKING/COMPLETED/PARTIAL/CANCELLED
	Notes             string          `json:"notes" gorm:"type:text"`
	CheckedAt         *time.Time      `json:"checked_at"`
	CheckedBy         *string         `json:"checked_by" gorm:"size:32"`
	CreatedBy         string          `json:"created_by" gorm:"size:32"`
	Version           int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Mismatched  bool                `json:"mismatched" gorm:"-"`
	Submissions []PaymentSubmission `json:"submissions,omitempty" gorm:"foreignKey:BatchID"`
}

func (PaymentSubmissionBatch) TableName() string {
	return "recon_payment_submission_batches"
}

func (b *PaymentSubmissionBatch) IsMismatched() bool {
	return !b.TotalSystemAmount.Equal(b.TotalActualAmount)
}

func (b *PaymentSubmissionBatch) AfterFind(tx *gorm.DB) error {
	b.Mismatched = b.IsMismatched()
	return nil
}

// Batch statuses
const (
	BatchStatusPending   = "PENDING"
	BatchStatusChecking  = "CHECKING"
	BatchStatusCompleted = "COMPLETED"
	BatchStatusPartial   = "PARTIAL"
	BatchStatusCancelled = "CANCELLED"
)

// ValidBatchTransitions legal manager transitions for a submission batch
var ValidBatchTransitions = map[string][]string{
	BatchStatusPending:  {BatchStatusChecking, BatchStatusCancelled},
	BatchStatusChecking: {BatchStatusCompleted, BatchStatusPartial},
	BatchStatusPartial:  {BatchStatusCompleted},
}

var BatchStatuses = []string{
	BatchStatusPending,
	BatchStatusChecking,
	BatchStatusCompleted,
	BatchStatusPartial,
	BatchStatusCancelled,
}

func IsBatchTerminal(status string) bool {
	return status == BatchStatusCompleted || status == BatchStatusCancelled
}

// IsBatchOpen membership may only change while the batch is PENDING or CHECKING
func IsBatchOpen(status string) bool {
	return status == BatchStatusPending || status == BatchStatusChecking
}
