package workflow

import (
	"strings"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/shopspring/decimal"
)

// AllowedBatchTargets returns the statuses a manager may select next.
func AllowedBatchTargets(status string) []string {
	return copyTargets(entity.ValidBatchTransitions[status])
}

// RecomputeBatchTotals derives the batch totals from exactly the given members.
func RecomputeBatchTotals(b *entity.PaymentSubmissionBatch, members []entity.PaymentSubmission) {
	systemTotal := decimal.Zero
	actualTotal := decimal.Zero
	for _, m := range members {
		systemTotal = systemTotal.Add(m.SystemAmount)
		actualTotal = actualTotal.Add(m.ActualAmount)
	}
	b.TotalSystemAmount = systemTotal
	b.TotalActualAmount = actualTotal
	b.TotalOrders = len(members)
	b.Mismatched = b.IsMismatched()
}

// AdvanceBatch validates and applies a batch status change against the current
// member snapshot.
//
// COMPLETED from CHECKING needs every member terminal. COMPLETED from PARTIAL
// needs every member checked (terminal or an accepted MISMATCHED). PARTIAL needs
// at least one discrepant member and a justification note.
func AdvanceBatch(b *entity.PaymentSubmissionBatch, members []entity.PaymentSubmission, target, actor, notes string, now time.Time) error {
	if entity.IsBatchTerminal(b.Status) {
		return Errorf(KindTerminalStateViolation, "batch %s is %s and cannot change status", b.Code, b.Status)
	}
	if !contains(entity.ValidBatchTransitions[b.Status], target) {
		return Errorf(KindInvalidTransition, "batch %s cannot move from %s to %s", b.Code, b.Status, target)
	}

	notes = strings.TrimSpace(notes)
	switch target {
	case entity.BatchStatusCompleted:
		for _, m := range members {
			if entity.IsSubmissionTerminal(m.Status) {
				continue
			}
			if b.Status == entity.BatchStatusPartial && m.Status == entity.SubmissionStatusMismatched {
				continue
			}
			return Errorf(KindInvalidTransition, "batch %s cannot complete: submission %s is still %s", b.Code, m.Code, m.Status)
		}
	case entity.BatchStatusPartial:
		if !hasDiscrepancy(members) {
			return Errorf(KindInvalidTransition, "batch %s has no mismatched submission; PARTIAL is not allowed", b.Code)
		}
		if notes == "" {
			return Errorf(KindMissingJustification, "batch %s: accepting a discrepancy requires notes", b.Code)
		}
	}

	RecomputeBatchTotals(b, members)
	if target != entity.BatchStatusCancelled {
		checkedAt := now
		checkedBy := actor
		b.CheckedAt = &checkedAt
		b.CheckedBy = &checkedBy
	}
	if notes != "" {
		b.Notes = notes
	}
	b.Status = target
	return nil
}

func hasDiscrepancy(members []entity.PaymentSubmission) bool {
	for _, m := range members {
		if m.Status == entity.SubmissionStatusMismatched || m.Status == entity.SubmissionStatusAdjusted {
			return true
		}
	}
	return false
}
