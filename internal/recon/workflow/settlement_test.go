package workflow

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettlement(balance, remain int64) *entity.SettlementBatch {
	return &entity.SettlementBatch{
		ID:            3,
		Code:          "STL-TEST-0001",
		BalanceAmount: decimal.NewFromInt(balance),
		RemainAmount:  decimal.NewFromInt(remain),
		Status:        entity.SettlementStatusPending,
	}
}

func TestValidatePaymentAmount(t *testing.T) {
	b := newSettlement(-500000, 500000)

	tests := []struct {
		name    string
		amount  int64
		wantErr bool
	}{
		{"zero", 0, true},
		{"negative", -1, true},
		{"above remain", 600000, true},
		{"exactly remain", 500000, false},
		{"partial", 200000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePaymentAmount(b, decimal.NewFromInt(tt.amount))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidAmount), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	owedToShop := newSettlement(300000, 300000)
	err := ValidatePaymentAmount(owedToShop, decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	done := newSettlement(-100, 0)
	done.Status = entity.SettlementStatusCompleted
	err = ValidatePaymentAmount(done, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, ErrTerminalStateViolation))
}

func TestApplyConfirmedPayment_Scenario(t *testing.T) {
	b := newSettlement(-500000, 500000)

	require.True(t, errors.Is(ValidatePaymentAmount(b, decimal.NewFromInt(600000)), ErrInvalidAmount))
	require.NoError(t, ValidatePaymentAmount(b, decimal.NewFromInt(200000)))

	applied, err := ApplyConfirmedPayment(b, decimal.NewFromInt(200000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200000).Equal(applied))
	assert.True(t, decimal.NewFromInt(300000).Equal(b.RemainAmount))
	assert.Equal(t, entity.SettlementStatusPartial, b.Status)
	assert.True(t, CheckSettlementInvariant(b))

	applied, err = ApplyConfirmedPayment(b, decimal.NewFromInt(450000))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(300000).Equal(applied), "applied amount is clamped")
	assert.True(t, b.RemainAmount.IsZero())
	assert.Equal(t, entity.SettlementStatusCompleted, b.Status)
	assert.True(t, CheckSettlementInvariant(b))
}

func TestApplyDeclinedPayment(t *testing.T) {
	b := newSettlement(-500000, 500000)
	assert.True(t, ApplyDeclinedPayment(b, false))
	assert.Equal(t, entity.SettlementStatusFailed, b.Status)

	partial := newSettlement(-500000, 500000)
	ApplyConfirmedPayment(partial, decimal.NewFromInt(100000))
	assert.False(t, ApplyDeclinedPayment(partial, true))
	assert.Equal(t, entity.SettlementStatusPartial, partial.Status, "a later failure must not erase a partial payment")
	assert.True(t, decimal.NewFromInt(400000).Equal(partial.RemainAmount))
}

func TestApplyConfirmedPayment_ClosedSettlement(t *testing.T) {
	for _, status := range []string{entity.SettlementStatusCompleted, entity.SettlementStatusFailed} {
		b := newSettlement(-500000, 500000)
		b.Status = status
		applied, err := ApplyConfirmedPayment(b, decimal.NewFromInt(100000))
		assert.True(t, errors.Is(err, ErrTerminalStateViolation), status)
		assert.True(t, applied.IsZero())
		assert.True(t, decimal.NewFromInt(500000).Equal(b.RemainAmount), "%s: balance must not move", status)
		assert.Equal(t, status, b.Status)
	}
}

func TestSettlementTransitionTable(t *testing.T) {
	for _, from := range entity.SettlementStatuses {
		for _, to := range entity.SettlementStatuses {
			b := newSettlement(-500000, 500000)
			b.Status = from
			err := advanceSettlement(b, to)
			switch {
			case from == to:
				assert.NoError(t, err, "%s -> %s", from, to)
			case entity.IsSettlementTerminal(from):
				assert.True(t, errors.Is(err, ErrTerminalStateViolation), "%s -> %s", from, to)
			case contains(AllowedSettlementTargets(from), to):
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, b.Status)
			default:
				assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s", from, to)
				assert.Equal(t, from, b.Status)
			}
		}
	}
	assert.Empty(t, AllowedSettlementTargets(entity.SettlementStatusCompleted))
	assert.NotContains(t, AllowedSettlementTargets(entity.SettlementStatusPartial), entity.SettlementStatusPending)
}

func TestSettlementInvariant_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		balance := int64(rng.Intn(1000000) + 1)
		b := newSettlement(-balance, balance)
		applied := false
		for step := 0; step < 10; step++ {
			if entity.IsSettlementTerminal(b.Status) {
				break
			}
			if rng.Intn(4) == 0 {
				ApplyDeclinedPayment(b, applied)
			} else {
				amount := decimal.NewFromInt(int64(rng.Intn(int(balance)) + 1))
				if ValidatePaymentAmount(b, amount) == nil || rng.Intn(2) == 0 {
					ApplyConfirmedPayment(b, amount)
					applied = true
				}
			}
			require.True(t, CheckSettlementInvariant(b), "invariant broken: remain=%s balance=%s status=%s",
				b.RemainAmount, b.BalanceAmount, b.Status)
		}
	}
}
