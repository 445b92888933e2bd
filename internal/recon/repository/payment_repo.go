package repository

import (
	"context"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"gorm.io/gorm"
)

// PaymentRepository settlement payment intents
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *entity.SettlementPayment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) Update(ctx context.Context, p *entity.SettlementPayment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *PaymentRepository) FindByTxnRef(ctx context.Context, txnRef string) (*entity.SettlementPayment, error) {
	var p entity.SettlementPayment
	if err := r.db.WithContext(ctx).Where("txn_ref = ?", txnRef).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindByTxnRefForUpdate locks the intent so concurrent callbacks serialize on it.
func (r *PaymentRepository) FindByTxnRefForUpdate(ctx context.Context, txnRef string) (*entity.SettlementPayment, error) {
	var p entity.SettlementPayment
	if err := r.db.WithContext(ctx).Clauses(forUpdate).Where("txn_ref = ?", txnRef).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindBySettlement payment intents of one batch, newest first
func (r *PaymentRepository) FindBySettlement(ctx context.Context, settlementID uint64) ([]entity.SettlementPayment, error) {
	var items []entity.SettlementPayment
	err := r.db.WithContext(ctx).
		Where("settlement_batch_id = ?", settlementID).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	return items, err
}

// HasApplied whether any confirmed money has reached the batch
func (r *PaymentRepository) HasApplied(ctx context.Context, settlementID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SettlementPayment{}).
		Where("settlement_batch_id = ? AND status = ?", settlementID, entity.PaymentStatusApplied).
		Count(&count).Error
	return count > 0, err
}
