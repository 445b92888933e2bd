package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/event"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/repository"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/workflow"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BatchService shipper-level aggregation of submissions
type BatchService struct {
	deps   Deps
	logger *zap.Logger
}

// CreateBatchRequest manager opens a batch for one shipper
type CreateBatchRequest struct {
	ShipperID      uint64          `json:"shipper_id" binding:"required"`
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
	Notes          string          `json:"notes"`
	SubmissionIDs  []uint64        `json:"submission_ids"`
}

// MembersRequest submissions to add to a batch
type MembersRequest struct {
	SubmissionIDs []uint64 `json:"submission_ids" binding:"required,min=1"`
}

func (s *BatchService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.PaymentSubmissionBatch, int64, error) {
	return s.deps.Repos.Batch.FindAll(ctx, page, pageSize, filters)
}

// Get batch with members; totals are recomputed from the loaded members.
func (s *BatchService) Get(ctx context.Context, id uint64) (*entity.PaymentSubmissionBatch, error) {
	b, err := s.deps.Repos.Batch.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "batch")
	}
	workflow.RecomputeBatchTotals(b, b.Submissions)
	return b, nil
}

func (s *BatchService) AllowedStatuses(ctx context.Context, id uint64) ([]string, error) {
	b, err := s.deps.Repos.Batch.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "batch")
	}
	return workflow.AllowedBatchTargets(b.Status), nil
}

func (s *BatchService) History(ctx context.Context, id uint64, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.deps.Repos.Batch.FindByID(ctx, id); err != nil {
		return nil, 0, storeErr(err, "batch")
	}
	return history(ctx, s.deps.Repos, entity.EntityTypeBatch, id, page, pageSize)
}

// Create opens a PENDING batch, optionally with initial members
func (s *BatchService) Create(ctx context.Context, actor Actor, req *CreateBatchRequest) (*entity.PaymentSubmissionBatch, error) {
	if req.DeclaredAmount.IsNegative() {
		return nil, workflow.Errorf(workflow.KindInvalidAmount, "declared amount must not be negative")
	}
	now := s.deps.Now()

	var (
		batch  *entity.PaymentSubmissionBatch
		events []event.Event
	)
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		code, err := tx.Batch.GenerateCode(ctx)
		if err != nil {
			return err
		}
		batch = &entity.PaymentSubmissionBatch{
			Code:              code,
			ShipperID:         req.ShipperID,
			DeclaredAmount:    req.DeclaredAmount,
			TotalSystemAmount: decimal.Zero,
			TotalActualAmount: decimal.Zero,
			Status:            entity.BatchStatusPending,
			Notes:             strings.TrimSpace(req.Notes),
			CreatedBy:         actor.ID,
		}
		if err := tx.Batch.Create(ctx, batch); err != nil {
			return err
		}
		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeBatch, batch.ID, batch.Code, "create", "", batch.Status,
			fmt.Sprintf("declared %s", batch.DeclaredAmount.StringFixed(2)), actor, now)); err != nil {
			return err
		}
		events = append(events, event.Event{
			Type:       event.TypeCreated,
			EntityType: entity.EntityTypeBatch,
			EntityID:   batch.ID,
			Code:       batch.Code,
			ToStatus:   batch.Status,
			Actor:      actor.ID,
			OccurredAt: now,
		})

		if len(req.SubmissionIDs) > 0 {
			more, err := s.addMembers(ctx, tx, actor, batch, req.SubmissionIDs, nil)
			if err != nil {
				return err
			}
			events = append(events, more...)
		}
		return nil
	})
	if err != nil {
		reject(s.logger, s.deps.Metrics, entity.EntityTypeBatch, "new", err)
		return nil, err
	}

	s.deps.Events.Emit(ctx, events...)
	return s.Get(ctx, batch.ID)
}

// AddSubmissions moves PENDING submissions of the batch's shipper into the batch.
func (s *BatchService) AddSubmissions(ctx context.Context, actor Actor, batchID uint64, req *MembersRequest) (*entity.PaymentSubmissionBatch, error) {
	return s.addSubmissions(ctx, actor, batchID, req.SubmissionIDs, nil)
}

func (s *BatchService) addSubmissions(ctx context.Context, actor Actor, batchID uint64, ids []uint64, versions map[uint64]int64) (*entity.PaymentSubmissionBatch, error) {
	var events []event.Event
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		batch, err := tx.Batch.FindByIDForUpdate(ctx, batchID)
		if err != nil {
			return storeErr(err, "batch")
		}
		events, err = s.addMembers(ctx, tx, actor, batch, ids, versions)
		return err
	})
	if err != nil {
		reject(s.logger, s.deps.Metrics, entity.EntityTypeBatch, fmt.Sprintf("id=%d", batchID), err)
		return nil, err
	}
	s.deps.Events.Emit(ctx, events...)
	return s.Get(ctx, batchID)
}

// addMembers runs inside tx with the batch row already locked.
func (s *BatchService) addMembers(ctx context.Context, tx *repository.Repositories, actor Actor, batch *entity.PaymentSubmissionBatch, ids []uint64, versions map[uint64]int64) ([]event.Event, error) {
	if !entity.IsBatchOpen(batch.Status) {
		return nil, workflow.Errorf(workflow.KindInvalidTransition, "batch %s is %s and no longer accepts submissions", batch.Code, batch.Status)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, workflow.Errorf(workflow.KindNotFound, "no submissions selected")
	}
	subs, err := tx.Submission.FindByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(subs) != len(ids) {
		return nil, workflow.Errorf(workflow.KindNotFound, "some submissions were not found")
	}

	now := s.deps.Now()
	var events []event.Event
	codes := make([]string, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		if err := admitMember(sub, batch, now); err != nil {
			return nil, err
		}
		if v, ok := versions[sub.ID]; ok {
			if err := checkVersion(&v, sub.Version, "submission "+sub.Code); err != nil {
				return nil, err
			}
		}

		from := sub.Status
		if err := workflow.AdvanceSubmission(sub, entity.SubmissionStatusInBatch, actor.ID, now); err != nil {
			return nil, err
		}
		batchID := batch.ID
		sub.BatchID = &batchID
		if err := tx.Submission.UpdateVersioned(ctx, sub); err != nil {
			return nil, storeErr(err, "submission "+sub.Code)
		}
		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSubmission, sub.ID, sub.Code, "status_change",
			from, sub.Status, "added to "+batch.Code, actor, now)); err != nil {
			return nil, err
		}
		events = append(events, statusEvent(entity.EntityTypeSubmission, sub.ID, sub.Code, from, sub.Status, actor, now))
		s.deps.Metrics.TransitionsTotal.WithLabelValues(entity.EntityTypeSubmission, from, sub.Status).Inc()
		codes = append(codes, sub.Code)
	}

	if err := refreshBatchTotals(ctx, tx, batch); err != nil {
		return nil, err
	}
	if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeBatch, batch.ID, batch.Code, "add_member",
		batch.Status, batch.Status, strings.Join(codes, ", "), actor, now)); err != nil {
		return nil, err
	}
	events = append(events, membersEvent(batch, actor, now))
	return events, nil
}

// admitMember checks that sub may join batch. The status rule runs first so a
// closed submission reports TerminalStateViolation rather than a membership error.
func admitMember(sub *entity.PaymentSubmission, batch *entity.PaymentSubmissionBatch, now time.Time) error {
	candidate := *sub
	if err := workflow.AdvanceSubmission(&candidate, entity.SubmissionStatusInBatch, "", now); err != nil {
		return err
	}
	if sub.ShipperID != batch.ShipperID {
		return workflow.Errorf(workflow.KindInvalidTransition, "submission %s belongs to another shipper", sub.Code)
	}
	if sub.BatchID != nil {
		return workflow.Errorf(workflow.KindInvalidTransition, "submission %s is already in a batch", sub.Code)
	}
	return nil
}

// RemoveSubmission releases an unchecked member back to PENDING while the
// batch is still open.
func (s *BatchService) RemoveSubmission(ctx context.Context, actor Actor, batchID, submissionID uint64) (*entity.PaymentSubmissionBatch, error) {
	now := s.deps.Now()
	var events []event.Event
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		batch, err := tx.Batch.FindByIDForUpdate(ctx, batchID)
		if err != nil {
			return storeErr(err, "batch")
		}
		if !entity.IsBatchOpen(batch.Status) {
			return workflow.Errorf(workflow.KindInvalidTransition, "batch %s is %s; members can no longer be removed", batch.Code, batch.Status)
		}
		sub, err := tx.Submission.FindByIDForUpdate(ctx, submissionID)
		if err != nil {
			return storeErr(err, "submission")
		}
		if sub.BatchID == nil || *sub.BatchID != batch.ID {
			return workflow.Errorf(workflow.KindNotFound, "submission %s is not a member of %s", sub.Code, batch.Code)
		}
		if sub.Status != entity.SubmissionStatusInBatch {
			return workflow.Errorf(workflow.KindInvalidTransition, "submission %s is already %s and stays in the batch", sub.Code, sub.Status)
		}

		events, err = s.release(ctx, tx, actor, sub, "removed from "+batch.Code)
		if err != nil {
			return err
		}
		if err := refreshBatchTotals(ctx, tx, batch); err != nil {
			return err
		}
		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeBatch, batch.ID, batch.Code, "remove_member",
			batch.Status, batch.Status, sub.Code, actor, now)); err != nil {
			return err
		}
		events = append(events, membersEvent(batch, actor, now))
		return nil
	})
	if err != nil {
		reject(s.logger, s.deps.Metrics, entity.EntityTypeBatch, fmt.Sprintf("id=%d", batchID), err)
		return nil, err
	}
	s.deps.Events.Emit(ctx, events...)
	return s.Get(ctx, batchID)
}

// release detaches an IN_BATCH member. This is membership bookkeeping, not a
// manager transition, so it bypasses the transition table.
func (s *BatchService) release(ctx context.Context, tx *repository.Repositories, actor Actor, sub *entity.PaymentSubmission, note string) ([]event.Event, error) {
	now := s.deps.Now()
	from := sub.Status
	sub.Status = entity.SubmissionStatusPending
	sub.BatchID = nil
	if err := tx.Submission.UpdateVersioned(ctx, sub); err != nil {
		return nil, storeErr(err, "submission "+sub.Code)
	}
	if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSubmission, sub.ID, sub.Code, "release",
		from, sub.Status, note, actor, now)); err != nil {
		return nil, err
	}
	return []event.Event{statusEvent(entity.EntityTypeSubmission, sub.ID, sub.Code, from, sub.Status, actor, now)}, nil
}

// Advance applies a manager batch status change against a locked member snapshot.
func (s *BatchService) Advance(ctx context.Context, actor Actor, id uint64, req *StatusRequest) (*entity.PaymentSubmissionBatch, error) {
	target := strings.ToUpper(strings.TrimSpace(req.Status))
	now := s.deps.Now()

	var (
		code   string
		from   string
		events []event.Event
	)
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		batch, err := tx.Batch.FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr(err, "batch")
		}
		code = batch.Code
		if err := checkVersion(req.Version, batch.Version, "batch "+batch.Code); err != nil {
			return err
		}
		members, err := tx.Submission.FindByBatchForUpdate(ctx, batch.ID)
		if err != nil {
			return err
		}

		from = batch.Status
		if err := workflow.AdvanceBatch(batch, members, target, actor.ID, req.Notes, now); err != nil {
			return err
		}

		if target == entity.BatchStatusCancelled {
			for i := range members {
				if members[i].Status != entity.SubmissionStatusInBatch {
					continue
				}
				released, err := s.release(ctx, tx, actor, &members[i], batch.Code+" cancelled")
				if err != nil {
					return err
				}
				events = append(events, released...)
			}
			if err := refreshBatchTotals(ctx, tx, batch); err != nil {
				return err
			}
		} else if err := tx.Batch.UpdateVersioned(ctx, batch); err != nil {
			return storeErr(err, "batch "+batch.Code)
		}

		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeBatch, batch.ID, batch.Code, "status_change",
			from, batch.Status, strings.TrimSpace(req.Notes), actor, now)); err != nil {
			return err
		}
		events = append(events, statusEvent(entity.EntityTypeBatch, batch.ID, batch.Code, from, batch.Status, actor, now))
		return nil
	})
	if err != nil {
		if code == "" {
			code = fmt.Sprintf("id=%d", id)
		}
		reject(s.logger, s.deps.Metrics, entity.EntityTypeBatch, code, err)
		return nil, err
	}

	s.deps.Metrics.TransitionsTotal.WithLabelValues(entity.EntityTypeBatch, from, target).Inc()
	s.logger.Info("batch status changed",
		zap.String("code", code),
		zap.String("from", from),
		zap.String("to", target),
		zap.String("actor", actor.ID))
	s.deps.Events.Emit(ctx, events...)
	return s.Get(ctx, id)
}

func membersEvent(b *entity.PaymentSubmissionBatch, actor Actor, now time.Time) event.Event {
	return event.Event{
		Type:       event.TypeMembersChanged,
		EntityType: entity.EntityTypeBatch,
		EntityID:   b.ID,
		Code:       b.Code,
		ToStatus:   b.Status,
		Actor:      actor.ID,
		OccurredAt: now,
		Data: map[string]interface{}{
			"total_orders":        b.TotalOrders,
			"total_system_amount": b.TotalSystemAmount.StringFixed(2),
			"total_actual_amount": b.TotalActualAmount.StringFixed(2),
		},
	}
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
