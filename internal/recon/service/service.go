package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/event"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/gateway"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/repository"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/workflow"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/lock"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Actor the manager (or system) performing an action
type Actor struct {
	ID   string
	Name string
}

// SystemActor is used for gateway callbacks.
var SystemActor = Actor{ID: "system", Name: "payment-gateway"}

// PaymentGateway is satisfied by *gateway.Client.
type PaymentGateway interface {
	BuildPaymentURL(req gateway.PaymentRequest) (string, error)
	ParseCallback(params url.Values) (*gateway.Callback, error)
}

// Archiver stores a copy of generated exports; *storage.ObjectStore satisfies it.
type Archiver interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Deps everything the services need; optional fields may be nil.
type Deps struct {
	Repos    *repository.Repositories
	Gateway  PaymentGateway
	Lock     lock.DistributedLock
	LockTTL  time.Duration
	Events   *event.Dispatcher
	Metrics  *monitor.ReconMetrics
	Archiver Archiver
	Logger   *zap.Logger
	Now      func() time.Time
}

// Services reconciliation services
type Services struct {
	Submission *SubmissionService
	Batch      *BatchService
	Settlement *SettlementService
	Export     *ExportService
}

func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = monitor.NewReconMetrics(prometheus.NewRegistry())
	}
	if d.Lock == nil {
		d.Lock = lock.NopLock{}
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = event.NewDispatcher(d.Logger, d.Metrics)
	}

	batch := &BatchService{deps: d, logger: d.Logger.Named("batch")}
	return &Services{
		Submission: &SubmissionService{deps: d, logger: d.Logger.Named("submission"), batch: batch},
		Batch:      batch,
		Settlement: &SettlementService{deps: d, logger: d.Logger.Named("settlement")},
		Export:     &ExportService{deps: d, logger: d.Logger.Named("export")},
	}
}

var (
	ErrDuplicateOrder = errors.New("a payment submission already exists for this order")
	ErrInvalidInput   = errors.New("invalid input")
)

// StatusRequest manager status change; Version, when sent, must match the
// version the client last saw.
type StatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Notes   string `json:"notes"`
	Version *int64 `json:"version"`
	BatchID uint64 `json:"batch_id"`
}

// storeErr maps repository errors onto the workflow taxonomy.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return workflow.Errorf(workflow.KindNotFound, "%s not found", what)
	case errors.Is(err, repository.ErrVersionConflict):
		return workflow.Errorf(workflow.KindConcurrentModification, "%s was modified by another request, reload and retry", what)
	}
	return err
}

func checkVersion(expected *int64, actual int64, what string) error {
	if expected != nil && *expected != actual {
		return workflow.Errorf(workflow.KindConcurrentModification,
			"%s was modified by another request (version %d, current %d)", what, *expected, actual)
	}
	return nil
}

// reject logs and counts a refused operation
func reject(logger *zap.Logger, metrics *monitor.ReconMetrics, entityType, code string, err error) {
	kind := workflow.KindOf(err)
	if kind == 0 {
		return
	}
	metrics.RejectionsTotal.WithLabelValues(entityType, kind.String()).Inc()
	logger.Warn("operation rejected",
		zap.String("code", code),
		zap.String("kind", kind.String()),
		zap.Error(err))
}

func activity(entityType string, id uint64, code, action, from, to, content string, actor Actor, now time.Time) *entity.ActivityLog {
	return &entity.ActivityLog{
		EntityType:   entityType,
		EntityID:     id,
		EntityCode:   code,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
		Content:      content,
		OperatorID:   actor.ID,
		OperatorName: actor.Name,
		CreatedAt:    now,
	}
}

func statusEvent(entityType string, id uint64, code, from, to string, actor Actor, now time.Time) event.Event {
	return event.Event{
		Type:       event.TypeStatusChanged,
		EntityType: entityType,
		EntityID:   id,
		Code:       code,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor.ID,
		OccurredAt: now,
	}
}

// History audit trail of one entity
func history(ctx context.Context, repos *repository.Repositories, entityType string, id uint64, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	return repos.ActivityLog.FindByEntity(ctx, entityType, id, page, pageSize)
}
