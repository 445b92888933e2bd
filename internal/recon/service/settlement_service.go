package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/event"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/gateway"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/repository"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payment outcomes reported by ConfirmPayment
const (
	OutcomeApplied   = "applied"
	OutcomeDeclined  = "declined"
	OutcomeDuplicate = "duplicate"
	OutcomeUnapplied = "unapplied"
)

// SettlementService shop balance settlement and gateway payments
type SettlementService struct {
	deps   Deps
	logger *zap.Logger
}

// CreateSettlementRequest used by the settlement scheduler and for seeding
type CreateSettlementRequest struct {
	ShopID        uint64          `json:"shop_id" binding:"required"`
	BalanceAmount decimal.Decimal `json:"balance_amount"`
	PeriodStart   *string         `json:"period_start"`
	PeriodEnd     *string         `json:"period_end"`
}

// InitiatePaymentRequest shop pays (part of) what it owes
type InitiatePaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	OrderInfo string          `json:"order_info"`
	ClientIP  string          `json:"-"`
}

// PaymentIntent handed back to the caller, who redirects to PaymentURL
type PaymentIntent struct {
	SettlementID uint64          `json:"settlement_id"`
	TxnRef       string          `json:"txn_ref"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentURL   string          `json:"payment_url"`
}

// ConfirmResult what a gateway callback did
type ConfirmResult struct {
	TxnRef       string          `json:"txn_ref"`
	SettlementID uint64          `json:"settlement_id"`
	Outcome      string          `json:"outcome"`
	Applied      decimal.Decimal `json:"applied"`
	RemainAmount decimal.Decimal `json:"remain_amount"`
	Status       string          `json:"status"`
}

// Duplicate reports a redelivered callback that changed nothing
func (r *ConfirmResult) Duplicate() bool {
	return r.Outcome == OutcomeDuplicate
}

func (s *SettlementService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.SettlementBatch, int64, error) {
	return s.deps.Repos.Settlement.FindAll(ctx, page, pageSize, filters)
}

func (s *SettlementService) Get(ctx context.Context, id uint64) (*entity.SettlementBatch, error) {
	b, err := s.deps.Repos.Settlement.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "settlement")
	}
	return b, nil
}

func (s *SettlementService) ListPayments(ctx context.Context, id uint64) ([]entity.SettlementPayment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.deps.Repos.Payment.FindBySettlement(ctx, id)
}

func (s *SettlementService) History(ctx context.Context, id uint64, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return history(ctx, s.deps.Repos, entity.EntityTypeSettlement, id, page, pageSize)
}

// Create opens a settlement batch for one shop and period
func (s *SettlementService) Create(ctx context.Context, actor Actor, req *CreateSettlementRequest) (*entity.SettlementBatch, error) {
	b := &entity.SettlementBatch{
		ShopID:        req.ShopID,
		BalanceAmount: req.BalanceAmount,
		RemainAmount:  req.BalanceAmount.Abs(),
		Status:        entity.SettlementStatusPending,
	}
	// nothing owed either way
	if b.RemainAmount.IsZero() {
		b.Status = entity.SettlementStatusCompleted
	}
	var err error
	if b.PeriodStart, err = parseDate(req.PeriodStart); err != nil {
		return nil, err
	}
	if b.PeriodEnd, err = parseDate(req.PeriodEnd); err != nil {
		return nil, err
	}
	if b.PeriodStart != nil && b.PeriodEnd != nil && b.PeriodEnd.Before(*b.PeriodStart) {
		return nil, fmt.Errorf("%w: period_end is before period_start", ErrInvalidInput)
	}

	now := s.deps.Now()
	err = s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		code, err := tx.Settlement.GenerateCode(ctx)
		if err != nil {
			return err
		}
		b.Code = code
		if err := tx.Settlement.Create(ctx, b); err != nil {
			return err
		}
		return tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSettlement, b.ID, b.Code, "create", "", b.Status,
			fmt.Sprintf("balance %s", b.BalanceAmount.StringFixed(2)), actor, now))
	})
	if err != nil {
		return nil, err
	}

	s.deps.Events.Emit(ctx, event.Event{
		Type:       event.TypeCreated,
		EntityType: entity.EntityTypeSettlement,
		EntityID:   b.ID,
		Code:       b.Code,
		ToStatus:   b.Status,
		Actor:      actor.ID,
		OccurredAt: now,
	})
	return b, nil
}

// InitiatePayment records a payment intent and returns the gateway redirect.
// The balance is not touched until the gateway confirms.
func (s *SettlementService) InitiatePayment(ctx context.Context, actor Actor, id uint64, req *InitiatePaymentRequest) (*PaymentIntent, error) {
	if s.deps.Gateway == nil {
		return nil, errors.New("payment gateway is not configured")
	}
	now := s.deps.Now()

	var (
		intent *PaymentIntent
		code   string
	)
	err := s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		b, err := tx.Settlement.FindByID(ctx, id)
		if err != nil {
			return storeErr(err, "settlement")
		}
		code = b.Code
		if err := workflow.ValidatePaymentAmount(b, req.Amount); err != nil {
			return err
		}

		txnRef := newTxnRef()
		orderInfo := strings.TrimSpace(req.OrderInfo)
		if orderInfo == "" {
			orderInfo = "Thanh toan doi soat " + b.Code
		}
		payURL, err := s.deps.Gateway.BuildPaymentURL(gateway.PaymentRequest{
			TxnRef:    txnRef,
			Amount:    req.Amount,
			OrderInfo: orderInfo,
			ClientIP:  req.ClientIP,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("build payment url: %w", err)
		}

		p := &entity.SettlementPayment{
			SettlementBatchID: b.ID,
			TxnRef:            txnRef,
			Amount:            req.Amount,
			ConfirmedAmount:   decimal.Zero,
			Status:            entity.PaymentStatusInitiated,
			CreatedBy:         actor.ID,
		}
		if err := tx.Payment.Create(ctx, p); err != nil {
			return err
		}
		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSettlement, b.ID, b.Code, "payment_initiated",
			b.Status, b.Status, fmt.Sprintf("txn %s amount %s", txnRef, req.Amount.StringFixed(2)), actor, now)); err != nil {
			return err
		}
		intent = &PaymentIntent{SettlementID: b.ID, TxnRef: txnRef, Amount: req.Amount, PaymentURL: payURL}
		return nil
	})
	if err != nil {
		if code == "" {
			code = fmt.Sprintf("id=%d", id)
		}
		reject(s.logger, s.deps.Metrics, entity.EntityTypeSettlement, code, err)
		return nil, err
	}

	s.deps.Metrics.PaymentsTotal.WithLabelValues("initiated").Inc()
	s.deps.Events.Emit(ctx, event.Event{
		Type:       event.TypePaymentInitiated,
		EntityType: entity.EntityTypeSettlement,
		EntityID:   intent.SettlementID,
		Code:       code,
		Actor:      actor.ID,
		OccurredAt: now,
		Data:       map[string]interface{}{"txn_ref": intent.TxnRef, "amount": intent.Amount.StringFixed(2)},
	})
	return intent, nil
}

// ConfirmPayment applies a gateway callback exactly once per transaction
// reference. Redelivered callbacks return OutcomeDuplicate without error.
func (s *SettlementService) ConfirmPayment(ctx context.Context, params url.Values) (*ConfirmResult, error) {
	if s.deps.Gateway == nil {
		return nil, errors.New("payment gateway is not configured")
	}
	cb, err := s.deps.Gateway.ParseCallback(params)
	if err != nil {
		s.deps.Metrics.PaymentsTotal.WithLabelValues("signature_mismatch").Inc()
		s.logger.Warn("gateway callback rejected", zap.String("txn_ref", params.Get("vnp_TxnRef")), zap.Error(err))
		if errors.Is(err, gateway.ErrSignatureMismatch) {
			return nil, workflow.Errorf(workflow.KindSignatureMismatch, "callback signature mismatch")
		}
		return nil, err
	}

	// cheap path for redeliveries, no locks taken
	known, err := s.deps.Repos.Payment.FindByTxnRef(ctx, cb.TxnRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.deps.Metrics.PaymentsTotal.WithLabelValues("unknown").Inc()
			return nil, workflow.Errorf(workflow.KindUnknownTransaction, "unknown transaction %s", cb.TxnRef)
		}
		return nil, err
	}
	if known.Status != entity.PaymentStatusInitiated {
		return s.duplicate(ctx, known)
	}

	release, ok, err := s.deps.Lock.Acquire(ctx, "recon:txn:"+cb.TxnRef, s.deps.LockTTL)
	switch {
	case err != nil:
		// row locks below still serialize; the distributed lock only spares the database
		s.logger.Warn("txn lock unavailable, relying on row locks", zap.String("txn_ref", cb.TxnRef), zap.Error(err))
	case !ok:
		return nil, workflow.Errorf(workflow.KindConcurrentModification, "transaction %s is being confirmed by another request", cb.TxnRef)
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release txn lock", zap.String("txn_ref", cb.TxnRef), zap.Error(err))
			}
		}()
	}

	now := s.deps.Now()
	var (
		result *ConfirmResult
		events []event.Event
		from   string
	)
	err = s.deps.Repos.Transaction(ctx, func(tx *repository.Repositories) error {
		p, err := tx.Payment.FindByTxnRefForUpdate(ctx, cb.TxnRef)
		if err != nil {
			return storeErr(err, "payment")
		}
		b, err := tx.Settlement.FindByIDForUpdate(ctx, p.SettlementBatchID)
		if err != nil {
			return storeErr(err, "settlement")
		}
		from = b.Status
		result = &ConfirmResult{TxnRef: p.TxnRef, SettlementID: b.ID}

		if p.Status != entity.PaymentStatusInitiated {
			result.Outcome = OutcomeDuplicate
			result.RemainAmount = b.RemainAmount
			result.Status = b.Status
			return nil
		}
		if !cb.Amount.Equal(p.Amount) {
			return workflow.Errorf(workflow.KindInvalidAmount, "callback amount %s does not match intent %s",
				cb.Amount.StringFixed(2), p.Amount.StringFixed(2))
		}

		p.ResponseCode = cb.ResponseCode
		p.GatewayTxnNo = cb.GatewayTxnNo
		p.BankCode = cb.BankCode
		action := "payment_declined"
		switch {
		case cb.Succeeded() && entity.IsSettlementTerminal(b.Status):
			p.Status = entity.PaymentStatusUnapplied
			result.Outcome = OutcomeUnapplied
			action = "payment_unapplied"
		case cb.Succeeded():
			applied, err := workflow.ApplyConfirmedPayment(b, cb.Amount)
			if err != nil {
				return err
			}
			p.Status = entity.PaymentStatusApplied
			p.ConfirmedAmount = applied
			appliedAt := now
			p.AppliedAt = &appliedAt
			result.Outcome = OutcomeApplied
			result.Applied = applied
			action = "payment_applied"
			if err := tx.Settlement.UpdateVersioned(ctx, b); err != nil {
				return storeErr(err, "settlement "+b.Code)
			}
		default:
			p.Status = entity.PaymentStatusDeclined
			result.Outcome = OutcomeDeclined
			hasApplied, err := tx.Payment.HasApplied(ctx, b.ID)
			if err != nil {
				return err
			}
			if workflow.ApplyDeclinedPayment(b, hasApplied) {
				if err := tx.Settlement.UpdateVersioned(ctx, b); err != nil {
					return storeErr(err, "settlement "+b.Code)
				}
			}
		}
		if err := tx.Payment.Update(ctx, p); err != nil {
			return err
		}
		if err := tx.ActivityLog.Create(ctx, activity(entity.EntityTypeSettlement, b.ID, b.Code, action, from, b.Status,
			fmt.Sprintf("txn %s amount %s response %s", p.TxnRef, cb.Amount.StringFixed(2), cb.ResponseCode),
			SystemActor, now)); err != nil {
			return err
		}

		result.RemainAmount = b.RemainAmount
		result.Status = b.Status
		events = append(events, paymentEvent(b, p, result.Outcome, from, now))
		if from != b.Status {
			events = append(events, statusEvent(entity.EntityTypeSettlement, b.ID, b.Code, from, b.Status, SystemActor, now))
		}
		return nil
	})
	if err != nil {
		reject(s.logger, s.deps.Metrics, entity.EntityTypeSettlement, cb.TxnRef, err)
		return nil, err
	}

	s.deps.Metrics.PaymentsTotal.WithLabelValues(result.Outcome).Inc()
	switch result.Outcome {
	case OutcomeDuplicate:
		s.logger.Info("duplicate gateway callback ignored", zap.String("txn_ref", cb.TxnRef))
		return result, nil
	case OutcomeApplied:
		f, _ := result.Applied.Float64()
		s.deps.Metrics.PaymentAmountTotal.WithLabelValues("VND").Add(f)
		if from != result.Status {
			s.deps.Metrics.TransitionsTotal.WithLabelValues(entity.EntityTypeSettlement, from, result.Status).Inc()
		}
	case OutcomeUnapplied:
		s.logger.Warn("payment succeeded on a closed settlement; needs manual refund",
			zap.String("txn_ref", cb.TxnRef),
			zap.String("status", result.Status),
			zap.String("amount", cb.Amount.StringFixed(2)))
	case OutcomeDeclined:
		if from != result.Status {
			s.deps.Metrics.TransitionsTotal.WithLabelValues(entity.EntityTypeSettlement, from, result.Status).Inc()
		}
	}
	s.logger.Info("gateway callback processed",
		zap.String("txn_ref", cb.TxnRef),
		zap.String("outcome", result.Outcome),
		zap.String("remain", result.RemainAmount.StringFixed(2)),
		zap.String("status", result.Status))
	s.deps.Events.Emit(ctx, events...)
	return result, nil
}

// PaymentReturn what the browser return page shows
type PaymentReturn struct {
	TxnRef           string          `json:"txn_ref"`
	SettlementID     uint64          `json:"settlement_id"`
	Succeeded        bool            `json:"succeeded"`
	ResponseCode     string          `json:"response_code"`
	PaymentStatus    string          `json:"payment_status"`
	SettlementStatus string          `json:"settlement_status"`
	RemainAmount     decimal.Decimal `json:"remain_amount"`
}

// LookupReturn verifies the browser return redirect and reports the current
// state. It never mutates; the IPN callback is the only path that applies money.
func (s *SettlementService) LookupReturn(ctx context.Context, params url.Values) (*PaymentReturn, error) {
	if s.deps.Gateway == nil {
		return nil, errors.New("payment gateway is not configured")
	}
	cb, err := s.deps.Gateway.ParseCallback(params)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureMismatch) {
			return nil, workflow.Errorf(workflow.KindSignatureMismatch, "return signature mismatch")
		}
		return nil, err
	}
	p, err := s.deps.Repos.Payment.FindByTxnRef(ctx, cb.TxnRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Errorf(workflow.KindUnknownTransaction, "unknown transaction %s", cb.TxnRef)
		}
		return nil, err
	}
	b, err := s.Get(ctx, p.SettlementBatchID)
	if err != nil {
		return nil, err
	}
	return &PaymentReturn{
		TxnRef:           p.TxnRef,
		SettlementID:     b.ID,
		Succeeded:        cb.Succeeded(),
		ResponseCode:     cb.ResponseCode,
		PaymentStatus:    p.Status,
		SettlementStatus: b.Status,
		RemainAmount:     b.RemainAmount,
	}, nil
}

func (s *SettlementService) duplicate(ctx context.Context, p *entity.SettlementPayment) (*ConfirmResult, error) {
	b, err := s.deps.Repos.Settlement.FindByID(ctx, p.SettlementBatchID)
	if err != nil {
		return nil, storeErr(err, "settlement")
	}
	s.deps.Metrics.PaymentsTotal.WithLabelValues(OutcomeDuplicate).Inc()
	s.logger.Info("duplicate gateway callback ignored", zap.String("txn_ref", p.TxnRef), zap.String("payment_status", p.Status))
	return &ConfirmResult{
		TxnRef:       p.TxnRef,
		SettlementID: b.ID,
		Outcome:      OutcomeDuplicate,
		RemainAmount: b.RemainAmount,
		Status:       b.Status,
	}, nil
}

func paymentEvent(b *entity.SettlementBatch, p *entity.SettlementPayment, outcome, from string, now time.Time) event.Event {
	typ := event.TypePaymentDeclined
	switch outcome {
	case OutcomeApplied:
		typ = event.TypePaymentApplied
	case OutcomeUnapplied:
		typ = event.TypePaymentUnapplied
	}
	return event.Event{
		Type:       typ,
		EntityType: entity.EntityTypeSettlement,
		EntityID:   b.ID,
		Code:       b.Code,
		FromStatus: from,
		ToStatus:   b.Status,
		Actor:      SystemActor.ID,
		OccurredAt: now,
		Data: map[string]interface{}{
			"txn_ref":          p.TxnRef,
			"confirmed_amount": p.ConfirmedAmount.StringFixed(2),
			"remain_amount":    b.RemainAmount.StringFixed(2),
		},
	}
}

// newTxnRef opaque alphanumeric reference accepted by the gateway
func newTxnRef() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func parseDate(v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*v))
	if err != nil {
		return nil, fmt.Errorf("%w: date %q, expected YYYY-MM-DD", ErrInvalidInput, *v)
	}
	return &t, nil
}
