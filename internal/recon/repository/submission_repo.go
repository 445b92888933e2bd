package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"gorm.io/gorm"
)

// SubmissionRepository payment submission storage
type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) filtered(ctx context.Context, filters map[string]string) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entity.PaymentSubmission{})

	if statuses := statusList(filters["status"]); len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if shipperID := filters["shipper_id"]; shipperID != "" {
		query = query.Where("shipper_id = ?", shipperID)
	}
	if batchID := filters["batch_id"]; batchID != "" {
		if batchID == "none" {
			query = query.Where("batch_id IS NULL")
		} else {
			query = query.Where("batch_id = ?", batchID)
		}
	}
	if orderID := filters["order_id"]; orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	switch filters["mismatched"] {
	case "true":
		query = query.Where("system_amount <> actual_amount")
	case "false":
		query = query.Where("system_amount = actual_amount")
	}
	if startDate := filters["start_date"]; startDate != "" {
		query = query.Where("paid_at >= ?", startDate)
	}
	if endDate := filters["end_date"]; endDate != "" {
		query = query.Where("paid_at < ?", dayAfter(endDate))
	}
	if search := filters["search"]; search != "" {
		query = query.Where("code ILIKE ? OR CAST(order_id AS TEXT) = ?", "%"+search+"%", search)
	}
	return query
}

// FindAll lists submissions with filters and pagination
func (r *SubmissionRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PaymentSubmission, int64, error) {
	var items []entity.PaymentSubmission
	var total int64

	query := r.filtered(ctx, filters)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := pageOffset(page, pageSize)
	err := query.
		Order(orderBy(filters["sort"], "actual_amount")).
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindForExport same filters as FindAll, capped at limit rows
func (r *SubmissionRepository) FindForExport(ctx context.Context, filters map[string]string, limit int) ([]entity.PaymentSubmission, error) {
	var items []entity.PaymentSubmission
	err := r.filtered(ctx, filters).
		Order(orderBy(filters["sort"], "actual_amount")).
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id uint64) (*entity.PaymentSubmission, error) {
	var s entity.PaymentSubmission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// FindByIDForUpdate loads and row-locks a submission; only meaningful inside a transaction.
func (r *SubmissionRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*entity.PaymentSubmission, error) {
	var s entity.PaymentSubmission
	if err := r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// FindByIDsForUpdate locks the given submissions in id order.
func (r *SubmissionRepository) FindByIDsForUpdate(ctx context.Context, ids []uint64) ([]entity.PaymentSubmission, error) {
	var items []entity.PaymentSubmission
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindByBatch current members of a batch
func (r *SubmissionRepository) FindByBatch(ctx context.Context, batchID uint64) ([]entity.PaymentSubmission, error) {
	var items []entity.PaymentSubmission
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindByBatchForUpdate current members of a batch, row-locked
func (r *SubmissionRepository) FindByBatchForUpdate(ctx context.Context, batchID uint64) ([]entity.PaymentSubmission, error) {
	var items []entity.PaymentSubmission
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *SubmissionRepository) ExistsByOrderID(ctx context.Context, orderID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.PaymentSubmission{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count > 0, err
}

func (r *SubmissionRepository) Create(ctx context.Context, s *entity.PaymentSubmission) error {
	if s.Version == 0 {
		s.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		// a concurrent create for the same order lost the race
		if isUniqueViolation(err, "order_id") {
			return ErrDuplicateOrderID
		}
		return err
	}
	s.Mismatched = s.IsMismatched()
	return nil
}

// UpdateVersioned writes the mutable columns only if nobody changed the row
// since it was read, then bumps the version.
func (r *SubmissionRepository) UpdateVersioned(ctx context.Context, s *entity.PaymentSubmission) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&entity.PaymentSubmission{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]interface{}{
			"status":     s.Status,
			"batch_id":   s.BatchID,
			"notes":      s.Notes,
			"checked_at": s.CheckedAt,
			"checked_by": s.CheckedBy,
			"version":    s.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = now
	s.Mismatched = s.IsMismatched()
	return nil
}

// GenerateCode submission code PS-YYYYMM-XXXX
func (r *SubmissionRepository) GenerateCode(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("PS-%s", time.Now().Format("200601"))
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.PaymentSubmission{}).
		Where("code LIKE ?", prefix+"%").
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}
