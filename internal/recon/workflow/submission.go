package workflow

import (
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
)

// AllowedSubmissionTargets returns the statuses a manager may select next.
func AllowedSubmissionTargets(status string) []string {
	return copyTargets(entity.ValidSubmissionTransitions[status])
}

// AdvanceSubmission validates and applies a manager-selected status change.
// MATCHED is only accepted when the amounts agree and MISMATCHED only when they
// differ; the caller persists the result.
func AdvanceSubmission(s *entity.PaymentSubmission, target, actor string, now time.Time) error {
	if entity.IsSubmissionTerminal(s.Status) {
		return Errorf(KindTerminalStateViolation, "submission %s is %s and cannot change status", s.Code, s.Status)
	}
	if !contains(entity.ValidSubmissionTransitions[s.Status], target) {
		return Errorf(KindInvalidTransition, "submission %s cannot move from %s to %s", s.Code, s.Status, target)
	}

	mismatched := s.IsMismatched()
	switch {
	case target == entity.SubmissionStatusMatched && mismatched:
		return Errorf(KindAmountStatusConflict, "submission %s amounts differ (system %s, actual %s); MATCHED is not allowed",
			s.Code, s.SystemAmount.StringFixed(2), s.ActualAmount.StringFixed(2))
	case target == entity.SubmissionStatusMismatched && !mismatched:
		return Errorf(KindAmountStatusConflict, "submission %s amounts are equal; MISMATCHED is not allowed", s.Code)
	}

	if s.Status == entity.SubmissionStatusInBatch || s.Status == entity.SubmissionStatusMismatched {
		checkedAt := now
		checkedBy := actor
		s.CheckedAt = &checkedAt
		s.CheckedBy = &checkedBy
	}
	s.Status = target
	s.Mismatched = mismatched
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func copyTargets(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
