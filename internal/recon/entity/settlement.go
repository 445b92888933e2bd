package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementBatch shop balance settlement for one cycle
type SettlementBatch struct {
	ID     uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	Code   string `json:"code" gorm:"size:32;uniqueIndex;not null"`
	ShopID uint64 `json:"shop_id" gorm:"not null;index"`

	// negative: shop owes system, positive: system owes shop
	BalanceAmount decimal.Decimal `json:"balance_amount" gorm:"type:numeric(15,2);not null"`
	RemainAmount  decimal.Decimal `json:"remain_amount" gorm:"type:numeric(15,2);not null"`
	Status        string          `json:"status" gorm:"size:20;not null;index"` // PENDING/PARTIAL/COMPLETED/FAILED

	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	Version     int64      `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Payments []SettlementPayment `json:"payments,omitempty" gorm:"foreignKey:SettlementBatchID"`
}

func (SettlementBatch) TableName() string {
	return "recon_settlement_batches"
}

// PaidAmount how much of the balance has been settled so far
func (b *SettlementBatch) PaidAmount() decimal.Decimal {
	return b.BalanceAmount.Abs().Sub(b.RemainAmount)
}

// Settlement statuses
const (
	SettlementStatusPending   = "PENDING"
	SettlementStatusPartial   = "PARTIAL"
	SettlementStatusCompleted = "COMPLETED"
	SettlementStatusFailed    = "FAILED"
)

// ValidSettlementTransitions transitions driven by confirmed or declined gateway callbacks
var ValidSettlementTransitions = map[string][]string{
	SettlementStatusPending: {SettlementStatusPartial, SettlementStatusCompleted, SettlementStatusFailed},
	SettlementStatusPartial: {SettlementStatusCompleted, SettlementStatusFailed},
}

var SettlementStatuses = []string{
	SettlementStatusPending,
	SettlementStatusPartial,
	SettlementStatusCompleted,
	SettlementStatusFailed,
}

func IsSettlementTerminal(status string) bool {
	return status == SettlementStatusCompleted || status == SettlementStatusFailed
}

// SettlementPayment payment intent handed to the gateway and its outcome
type SettlementPayment struct {
	ID                uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	SettlementBatchID uint64          `json:"settlement_batch_id" gorm:"not null;index"`
	TxnRef            string          `json:"txn_ref" gorm:"size:64;uniqueIndex;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(15,2);not null"`
	ConfirmedAmount   decimal.Decimal `json:"confirmed_amount" gorm:"type:numeric(15,2);not null;default:0"`
	Status            string          `json:"status" gorm:"size:20;not null;index"` // INITIATED/APPLIED/DECLINED/UNAPPLIED
	ResponseCode      string          `json:"response_code" gorm:"size:10"`
	GatewayTxnNo      string          `json:"gateway_txn_no" gorm:"size:64"`
	BankCode          string          `json:"bank_code" gorm:"size:32"`
	CreatedBy         string          `json:"created_by" gorm:"size:32"`
	AppliedAt         *time.Time      `json:"applied_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (SettlementPayment) TableName() string {
	return "recon_settlement_payments"
}

// Payment intent statuses
const (
	PaymentStatusInitiated = "INITIATED"
	PaymentStatusApplied   = "APPLIED"
	PaymentStatusDeclined  = "DECLINED"
	// money received for a batch that was already terminal; left for manual reconciliation
	PaymentStatusUnapplied = "UNAPPLIED"
)
