package workflow

import (
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/shopspring/decimal"
)

// ValidatePaymentAmount checks an initiatePayment request. Only batches where the
// shop owes the system are payable through the gateway.
func ValidatePaymentAmount(b *entity.SettlementBatch, amount decimal.Decimal) error {
	if entity.IsSettlementTerminal(b.Status) {
		return Errorf(KindTerminalStateViolation, "settlement %s is %s and accepts no payment", b.Code, b.Status)
	}
	if !b.BalanceAmount.IsNegative() {
		return Errorf(KindInvalidAmount, "settlement %s is not payable by the shop", b.Code)
	}
	if !amount.IsPositive() {
		return Errorf(KindInvalidAmount, "payment amount must be greater than 0")
	}
	if amount.GreaterThan(b.RemainAmount) {
		return Errorf(KindInvalidAmount, "payment amount %s exceeds remaining %s",
			amount.StringFixed(2), b.RemainAmount.StringFixed(2))
	}
	return nil
}

// AllowedSettlementTargets statuses a gateway callback can move the settlement to.
func AllowedSettlementTargets(status string) []string {
	return copyTargets(entity.ValidSettlementTransitions[status])
}

// advanceSettlement moves b along the transition table. Staying in the same
// status is allowed; a partial payment on a PARTIAL batch only changes the balance.
func advanceSettlement(b *entity.SettlementBatch, target string) error {
	if b.Status == target {
		return nil
	}
	if entity.IsSettlementTerminal(b.Status) {
		return Errorf(KindTerminalStateViolation, "settlement %s is %s and cannot change status", b.Code, b.Status)
	}
	if !contains(entity.ValidSettlementTransitions[b.Status], target) {
		return Errorf(KindInvalidTransition, "settlement %s cannot move from %s to %s", b.Code, b.Status, target)
	}
	b.Status = target
	return nil
}

// ApplyConfirmedPayment reduces the remaining balance by a confirmed amount,
// clamped at zero, and returns how much was actually applied. A closed
// settlement is left untouched.
func ApplyConfirmedPayment(b *entity.SettlementBatch, amount decimal.Decimal) (decimal.Decimal, error) {
	if entity.IsSettlementTerminal(b.Status) {
		return decimal.Zero, Errorf(KindTerminalStateViolation, "settlement %s is %s and accepts no payment", b.Code, b.Status)
	}
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	applied := decimal.Min(amount, b.RemainAmount)
	remain := b.RemainAmount.Sub(applied)
	target := entity.SettlementStatusPartial
	if remain.IsZero() {
		target = entity.SettlementStatusCompleted
	}
	if err := advanceSettlement(b, target); err != nil {
		return decimal.Zero, err
	}
	b.RemainAmount = remain
	return applied, nil
}

// ApplyDeclinedPayment moves the batch to FAILED only if nothing has been paid
// yet. It reports whether the status changed.
func ApplyDeclinedPayment(b *entity.SettlementBatch, hasAppliedPayment bool) bool {
	if b.Status != entity.SettlementStatusPending || hasAppliedPayment {
		return false
	}
	return advanceSettlement(b, entity.SettlementStatusFailed) == nil
}

// CheckSettlementInvariant reports whether 0 <= remain <= |balance| and the
// COMPLETED status agrees with a zero remainder.
func CheckSettlementInvariant(b *entity.SettlementBatch) bool {
	if b.RemainAmount.IsNegative() || b.RemainAmount.GreaterThan(b.BalanceAmount.Abs()) {
		return false
	}
	return (b.Status == entity.SettlementStatusCompleted) == b.RemainAmount.IsZero()
}
