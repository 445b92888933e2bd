package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubmission(status string, system, actual int64) *entity.PaymentSubmission {
	return &entity.PaymentSubmission{
		ID:           1,
		Code:         "PS-TEST-0001",
		SystemAmount: decimal.NewFromInt(system),
		ActualAmount: decimal.NewFromInt(actual),
		Status:       status,
	}
}

func TestAdvanceSubmission_TransitionTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, from := range entity.SubmissionStatuses {
		for _, to := range entity.SubmissionStatuses {
			// pick amounts consistent with the target so only the table decides
			actual := int64(100000)
			if to == entity.SubmissionStatusMismatched || to == entity.SubmissionStatusAdjusted {
				actual = 95000
			}
			s := newSubmission(from, 100000, actual)
			err := AdvanceSubmission(s, to, "manager-1", now)

			allowed := contains(entity.ValidSubmissionTransitions[from], to)
			if allowed {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, s.Status)
				continue
			}

			require.Error(t, err, "%s -> %s", from, to)
			if entity.IsSubmissionTerminal(from) {
				assert.True(t, errors.Is(err, ErrTerminalStateViolation), "%s -> %s: %v", from, to, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s: %v", from, to, err)
			}
			assert.Equal(t, from, s.Status, "status must not change on rejection")
		}
	}
}

func TestAdvanceSubmission_AmountStatusConflict(t *testing.T) {
	now := time.Now()

	s := newSubmission(entity.SubmissionStatusInBatch, 100000, 95000)
	err := AdvanceSubmission(s, entity.SubmissionStatusMatched, "manager-1", now)
	assert.True(t, errors.Is(err, ErrAmountStatusConflict))
	assert.Equal(t, entity.SubmissionStatusInBatch, s.Status)
	assert.Nil(t, s.CheckedAt)

	s = newSubmission(entity.SubmissionStatusInBatch, 100000, 100000)
	err = AdvanceSubmission(s, entity.SubmissionStatusMismatched, "manager-1", now)
	assert.True(t, errors.Is(err, ErrAmountStatusConflict))
	assert.Equal(t, entity.SubmissionStatusInBatch, s.Status)
}

func TestAdvanceSubmission_ScenarioMatched(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newSubmission(entity.SubmissionStatusPending, 100000, 100000)

	require.NoError(t, AdvanceSubmission(s, entity.SubmissionStatusInBatch, "manager-1", now))
	assert.Nil(t, s.CheckedAt, "leaving PENDING does not record a check")

	require.NoError(t, AdvanceSubmission(s, entity.SubmissionStatusMatched, "manager-1", now))
	require.NotNil(t, s.CheckedAt)
	require.NotNil(t, s.CheckedBy)
	assert.Equal(t, now, *s.CheckedAt)
	assert.Equal(t, "manager-1", *s.CheckedBy)
	assert.False(t, s.Mismatched)

	for _, target := range entity.SubmissionStatuses {
		err := AdvanceSubmission(s, target, "manager-1", now)
		assert.True(t, errors.Is(err, ErrTerminalStateViolation), "MATCHED -> %s", target)
	}
}

func TestAdvanceSubmission_ScenarioAdjusted(t *testing.T) {
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)
	s := newSubmission(entity.SubmissionStatusInBatch, 100000, 95000)

	require.NoError(t, AdvanceSubmission(s, entity.SubmissionStatusMismatched, "manager-1", first))
	assert.True(t, s.Mismatched)
	assert.Equal(t, first, *s.CheckedAt)

	require.NoError(t, AdvanceSubmission(s, entity.SubmissionStatusAdjusted, "manager-2", second))
	assert.Equal(t, second, *s.CheckedAt)
	assert.Equal(t, "manager-2", *s.CheckedBy)

	err := AdvanceSubmission(s, entity.SubmissionStatusMatched, "manager-1", second)
	assert.True(t, errors.Is(err, ErrTerminalStateViolation))
	assert.Equal(t, KindTerminalStateViolation, KindOf(err))
}

func TestAllowedSubmissionTargets(t *testing.T) {
	assert.Equal(t, []string{entity.SubmissionStatusInBatch}, AllowedSubmissionTargets(entity.SubmissionStatusPending))
	assert.Empty(t, AllowedSubmissionTargets(entity.SubmissionStatusMatched))
	assert.Empty(t, AllowedSubmissionTargets("UNKNOWN"))

	// callers must not be able to mutate the shared table
	targets := AllowedSubmissionTargets(entity.SubmissionStatusInBatch)
	targets[0] = "HACKED"
	assert.Equal(t, entity.SubmissionStatusMatched, entity.ValidSubmissionTransitions[entity.SubmissionStatusInBatch][0])
}
