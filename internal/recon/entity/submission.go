package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentSubmission COD reconciliation record for one delivered order
type PaymentSubmission struct {
	ID           uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Code         string          `json:"code" gorm:"size:32;uniqueIndex;not null"`
	OrderID      uint64          `json:"order_id" gorm:"uniqueIndex;not null"`
	ShipperID    uint64          `json:"shipper_id" gorm:"not null;index"`
	BatchID      *uint64         `json:"batch_id" gorm:"index"`
	SystemAmount decimal.Decimal `json:"system_amount" gorm:"type:numeric(15,2);not null"`
	ActualAmount decimal.Decimal `json:"actual_amount" gorm:"type:numeric(15,2);not null"`
	Status       string          `json:"status" gorm:"size:20;not null;index"` // PENDING/IN_BATCH/MATCHED/MISMATCHED/ADJUSTED
	Notes        string          `json:"notes" gorm:"type:text"`
	PaidAt       time.Time       `json:"paid_at" gorm:"index"`
	CheckedAt    *time.Time      `json:"checked_at"`
	CheckedBy    *string         `json:"checked_by" gorm:"size:32"`
	Version      int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Mismatched bool `json:"mismatched" gorm:"-"`
}

func (PaymentSubmission) TableName() string {
	return "recon_payment_submissions"
}

// IsMismatched reports whether the declared cash differs from the expected COD.
func (s *PaymentSubmission) IsMismatched() bool {
	return !s.SystemAmount.Equal(s.ActualAmount)
}

// Difference is actual minus system; negative means the shipper is short.
func (s *PaymentSubmission) Difference() decimal.Decimal {
	return s.ActualAmount.Sub(s.SystemAmount)
}

func (s *PaymentSubmission) AfterFind(tx *gorm.DB) error {
	s.Mismatched = s.IsMismatched()
	return nil
}

// Submission statuses
const (
	SubmissionStatusPending    = "PENDING"
	SubmissionStatusInBatch    = "IN_BATCH"
	SubmissionStatusMatched    = "MATCHED"
	SubmissionStatusMismatched = "MISMATCHED"
	SubmissionStatusAdjusted   = "ADJUSTED"
)

// ValidSubmissionTransitions legal manager transitions; terminal states have no entry
var ValidSubmissionTransitions = map[string][]string{
	SubmissionStatusPending:    {SubmissionStatusInBatch},
	SubmissionStatusInBatch:    {SubmissionStatusMatched, SubmissionStatusMismatched},
	SubmissionStatusMismatched: {SubmissionStatusAdjusted},
}

// SubmissionStatuses every known submission status, in workflow order
var SubmissionStatuses = []string{
	SubmissionStatusPending,
	SubmissionStatusInBatch,
	SubmissionStatusMatched,
	SubmissionStatusMismatched,
	SubmissionStatusAdjusted,
}

// IsSubmissionTerminal MATCHED and ADJUSTED accept no further transitions
func IsSubmissionTerminal(status string) bool {
	return status == SubmissionStatusMatched || status == SubmissionStatusAdjusted
}
