package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"gorm.io/gorm"
)

// SettlementRepository settlement batch storage
type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) filtered(ctx context.Context, filters map[string]string) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entity.SettlementBatch{})

	if statuses := statusList(filters["status"]); len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if shopID := filters["shop_id"]; shopID != "" {
		query = query.Where("shop_id = ?", shopID)
	}
	switch filters["direction"] {
	case "payable":
		query = query.Where("balance_amount < 0")
	case "receivable":
		query = query.Where("balance_amount > 0")
	}
	if startDate := filters["start_date"]; startDate != "" {
		query = query.Where("period_start >= ?", startDate)
	}
	if endDate := filters["end_date"]; endDate != "" {
		query = query.Where("period_end < ?", dayAfter(endDate))
	}
	if search := filters["search"]; search != "" {
		query = query.Where("code ILIKE ?", "%"+search+"%")
	}
	return query
}

// FindAll lists settlement batches with filters and pagination
func (r *SettlementRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.SettlementBatch, int64, error) {
	var items []entity.SettlementBatch
	var total int64

	query := r.filtered(ctx, filters)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := pageOffset(page, pageSize)
	err := query.
		Order(orderBy(filters["sort"], "remain_amount")).
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

func (r *SettlementRepository) FindForExport(ctx context.Context, filters map[string]string, limit int) ([]entity.SettlementBatch, error) {
	var items []entity.SettlementBatch
	err := r.filtered(ctx, filters).
		Order(orderBy(filters["sort"], "remain_amount")).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// FindByID loads a settlement batch with its payment intents
func (r *SettlementRepository) FindByID(ctx context.Context, id uint64) (*entity.SettlementBatch, error) {
	var b entity.SettlementBatch
	err := r.db.WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *SettlementRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*entity.SettlementBatch, error) {
	var b entity.SettlementBatch
	if err := r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *SettlementRepository) Create(ctx context.Context, b *entity.SettlementBatch) error {
	if b.Version == 0 {
		b.Version = 1
	}
	return r.db.WithContext(ctx).Omit("Payments").Create(b).Error
}

// UpdateVersioned optimistic update of the balance fields
func (r *SettlementRepository) UpdateVersioned(ctx context.Context, b *entity.SettlementBatch) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&entity.SettlementBatch{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]interface{}{
			"remain_amount": b.RemainAmount,
			"status":        b.Status,
			"version":       b.Version + 1,
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

// GenerateCode settlement code STL-YYYYMM-XXXX
func (r *SettlementRepository) GenerateCode(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("STL-%s", time.Now().Format("200601"))
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SettlementBatch{}).
		Where("code LIKE ?", prefix+"%").
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}
