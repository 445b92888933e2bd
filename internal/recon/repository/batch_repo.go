package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"gorm.io/gorm"
)

// BatchRepository payment submission batch storage
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) filtered(ctx context.Context, filters map[string]string) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entity.PaymentSubmissionBatch{})

	if statuses := statusList(filters["status"]); len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if shipperID := filters["shipper_id"]; shipperID != "" {
		query = query.Where("shipper_id = ?", shipperID)
	}
	if createdBy := filters["created_by"]; createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}
	if startDate := filters["start_date"]; startDate != "" {
		query = query.Where("created_at >= ?", startDate)
	}
	if endDate := filters["end_date"]; endDate != "" {
		query = query.Where("created_at < ?", dayAfter(endDate))
	}
	if search := filters["search"]; search != "" {
		query = query.Where("code ILIKE ?", "%"+search+"%")
	}
	return query
}

// FindAll lists batches with filters and pagination
func (r *BatchRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PaymentSubmissionBatch, int64, error) {
	var items []entity.PaymentSubmissionBatch
	var total int64

	query := r.filtered(ctx, filters)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := pageOffset(page, pageSize)
	err := query.
		Order(orderBy(filters["sort"], "total_actual_amount")).
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

func (r *BatchRepository) FindForExport(ctx context.Context, filters map[string]string, limit int) ([]entity.PaymentSubmissionBatch, error) {
	var items []entity.PaymentSubmissionBatch
	err := r.filtered(ctx, filters).
		Order(orderBy(filters["sort"], "total_actual_amount")).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// FindByID loads a batch with its members
func (r *BatchRepository) FindByID(ctx context.Context, id uint64) (*entity.PaymentSubmissionBatch, error) {
	var b entity.PaymentSubmissionBatch
	err := r.db.WithContext(ctx).
		Preload("Submissions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// FindByIDForUpdate row-locks the batch header; members are locked separately.
func (r *BatchRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*entity.PaymentSubmissionBatch, error) {
	var b entity.PaymentSubmissionBatch
	if err := r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *BatchRepository) Create(ctx context.Context, b *entity.PaymentSubmissionBatch) error {
	if b.Version == 0 {
		b.Version = 1
	}
	return r.db.WithContext(ctx).Omit("Submissions").Create(b).Error
}

// UpdateVersioned optimistic update of status, totals and check fields
func (r *BatchRepository) UpdateVersioned(ctx context.Context, b *entity.PaymentSubmissionBatch) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&entity.PaymentSubmissionBatch{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]interface{}{
			"status":              b.Status,
			"total_system_amount": b.TotalSystemAmount,
			"total_actual_amount": b.TotalActualAmount,
			"total_orders":        b.TotalOrders,
			"notes":               b.Notes,
			"checked_at":          b.CheckedAt,
			"checked_by":          b.CheckedBy,
			"version":             b.Version + 1,
			"updated_at":          now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	b.Version++
	b.UpdatedAt = now
	b.Mismatched = b.IsMismatched()
	return nil
}

// GenerateCode batch code PSB-YYYYMM-XXXX
func (r *BatchRepository) GenerateCode(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("PSB-%s", time.Now().Format("200601"))
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.PaymentSubmissionBatch{}).
		Where("code LIKE ?", prefix+"%").
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}
