package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/event"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/repository"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/workflow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmissionService per-order COD reconciliation
type SubmissionService struct {
	deps   Deps
	logger *zap.Logger
	batch  *BatchService
}

// CreateSubmissionRequest shipper declaration after a COD delivery
type CreateSubmissionRequest struct {
	OrderID      uint64          `json:"order_id" binding:"required"`
	ShipperID    uint64          `json:"shipper_id" binding:"required"`
	SystemAmount decimal.Decimal `json:"system_amount"`
	ActualAmount decimal.Decimal `json:"actual_amount"`
	PaidAt       *time.Time      `json:"paid_at"`
	Notes        string          `json:"notes"`
}

func (s *SubmissionService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PaymentSubmission, int64, error) {
	return s.deps.Repos.Submission.FindAll(ctx, page, pageSize, filters)
}

func (s *SubmissionService) Get(ctx context.Context, id uint64) (*entity.PaymentSubmission, error) {
	sub, err := s.deps.Repos.Submission.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "submission")
	}
	return sub, nil
}

// AllowedStatuses targets the manager may pick for this submission
func (s *SubmissionService) AllowedStatuses(ctx context.Context, id uint64) ([]string, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return workflow.AllowedSubmissionTargets(sub.Status), nil
}

func (s *SubmissionService) History(ctx context.Context, id uint64, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return history(ctx, s.deps.Repos, entity.EntityTypeSubmission, id, page, pageSize)
}

// Create records a new PENDING submission
func (s *SubmissionService) Create(ctx context.Context, actor Actor, req *CreateSubmissionRequest) (*entity.PaymentSubmission, error) {
	if req.SystemAmount.IsNegative() || req.ActualAmount.IsNegative() {
		return nil, workflow.Errorf(workflow.KindInvalidAmount, "amounts must not be negative")
	}
	now := s.deps.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	var sub *entity.PaymentSubmission
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		exists, err := tx.Submission.ExistsByOrderID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateOrder
		}
		code, err := tx.Submission.GenerateCode(ctx)
		if err != nil {
			return err
		}
		sub = &entity.PaymentSubmission{
			Code:         code,
			OrderID:      req.OrderID,
			ShipperID:    req.ShipperID,
			SystemAmount: req.SystemAmount,
			ActualAmount: req.ActualAmount,
			Status:       entity.SubmissionStatusPending,
			Notes:        strings.TrimSpace(req.Notes),
			PaidAt:       paidAt,
		}
		if err := tx.Submission.Create(ctx, sub); err != nil {
			if errors.Is(err, repository.ErrDuplicateOrderID) {
				return ErrDuplicateOrder
			}
			return err
		}
		return tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSubmission, sub.ID, sub.Code, "create", "", sub.Status,
			fmt.Sprintf("system %s, actual %s", sub.SystemAmount.StringFixed(2), sub.ActualAmount.StringFixed(2)), actor, now))
	})
	if err != nil {
		return nil, err
	}

	if sub.Mismatched {
		s.logger.Info("submission declared with discrepancy",
			zap.String("code", sub.Code),
			zap.String("difference", sub.Difference().StringFixed(2)))
	}
	s.deps.Events.Emit(ctx, event.Event{
		Type:       event.TypeCreated,
		EntityType: entity.EntityTypeSubmission,
		EntityID:   sub.ID,
		Code:       sub.Code,
		ToStatus:   sub.Status,
		Actor:      actor.ID,
		OccurredAt: now,
	})
	return sub, nil
}

// Advance applies a manager status change. Moving to IN_BATCH goes through
// batch membership so the submission always has an owning batch.
func (s *SubmissionService) Advance(ctx context.Context, actor Actor, id uint64, req *StatusRequest) (*entity.PaymentSubmission, error) {
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	if target == entity.SubmissionStatusInBatch {
		return s.joinBatch(ctx, actor, id, req)
	}

	now := s.deps.Now()
	var (
		result *entity.PaymentSubmission
		from   string
		events []event.Event
	)
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		current, err := tx.Submission.FindByID(ctx, id)
		if err != nil {
			return storeErr(err, "submission")
		}

		// batch row first, same order as membership changes
		var batch *entity.PaymentSubmissionBatch
		if current.BatchID != nil {
			if batch, err = tx.Batch.FindByIDForUpdate(ctx, *current.BatchID); err != nil {
				return storeErr(err, "batch")
			}
		}
		sub, err := tx.Submission.FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr(err, "submission")
		}
		if !sameBatch(sub.BatchID, current.BatchID) {
			return workflow.Errorf(workflow.KindConcurrentModification, "submission %s changed batch, reload and retry", sub.Code)
		}
		if err := checkVersion(req.Version, sub.Version, "submission "+sub.Code); err != nil {
			return err
		}

		from = sub.Status
		if err := workflow.AdvanceSubmission(sub, target, actor.ID, now); err != nil {
			return err
		}
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			sub.Notes = notes
		}
		if err := tx.Submission.UpdateVersioned(ctx, sub); err != nil {
			return storeErr(err, "submission "+sub.Code)
		}
		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSubmission, sub.ID, sub.Code, "status_change",
			from, sub.Status, sub.Notes, actor, now)); err != nil {
			return err
		}
		events = append(events, statusEvent(entity.EntityTypeSubmission, sub.ID, sub.Code, from, sub.Status, actor, now))

		if batch != nil {
			if err := refreshBatchTotals(ctx, tx, batch); err != nil {
				return err
			}
		}
		result = sub
		return nil
	})
	if err != nil {
		reject(s.logger, s.deps.Metrics, entity.EntityTypeSubmission, fmt.Sprintf("id=%d", id), err)
		return nil, err
	}

	s.deps.Metrics.TransitionsTotal.WithLabelValues(entity.EntityTypeSubmission, from, result.Status).Inc()
	s.logger.Info("submission status changed",
		zap.String("code", result.Code),
		zap.String("from", from),
		zap.String("to", result.Status),
		zap.String("actor", actor.ID))
	s.deps.Events.Emit(ctx, events...)
	return result, nil
}

func (s *SubmissionService) joinBatch(ctx context.Context, actor Actor, id uint64, req *StatusRequest) (*entity.PaymentSubmission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkJoinRequest(sub, req.BatchID, s.deps.Now()); err != nil {
		reject(s.logger, s.deps.Metrics, entity.EntityTypeSubmission, sub.Code, err)
		return nil, err
	}
	var versions map[uint64]int64
	if req.Version != nil {
		versions = map[uint64]int64{id: *req.Version}
	}
	if _, err := s.batch.addSubmissions(ctx, actor, req.BatchID, []uint64{id}, versions); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// checkJoinRequest applies the status rules before looking at the target
// batch, so a closed submission always reports TerminalStateViolation.
// Membership itself is re-checked under row locks by addMembers.
func checkJoinRequest(sub *entity.PaymentSubmission, batchID uint64, now time.Time) error {
	candidate := *sub
	if err := workflow.AdvanceSubmission(&candidate, entity.SubmissionStatusInBatch, "", now); err != nil {
		return err
	}
	if batchID == 0 {
		return workflow.Errorf(workflow.KindInvalidTransition, "moving a submission to IN_BATCH requires batch_id")
	}
	return nil
}

// refreshBatchTotals recomputes totals over the members visible in tx
func refreshBatchTotals(ctx context.Context, tx *repository.Repositories, batch *entity.PaymentSubmissionBatch) error {
	members, err := tx.Submission.FindByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	workflow.RecomputeBatchTotals(batch, members)
	if err := tx.Batch.UpdateVersioned(ctx, batch); err != nil {
		return storeErr(err, "batch "+batch.Code)
	}
	batch.Submissions = members
	return nil
}

func sameBatch(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
