// Package event fans reconciliation state changes out to live clients and
// downstream consumers once the owning transaction has committed.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/monitor"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/mq"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/sse"
	"go.uber.org/zap"
)

// Event types
const (
	TypeCreated          = "created"
	TypeStatusChanged    = "status_changed"
	TypeMembersChanged   = "members_changed"
	TypePaymentInitiated = "payment_initiated"
	TypePaymentApplied   = "payment_applied"
	TypePaymentDeclined  = "payment_declined"
	TypePaymentUnapplied = "payment_unapplied"
)

// Event one committed change
type Event struct {
	Type       string                 `json:"type"`
	EntityType string                 `json:"entity_type"`
	EntityID   uint64                 `json:"entity_id"`
	Code       string                 `json:"code"`
	FromStatus string                 `json:"from_status,omitempty"`
	ToStatus   string                 `json:"to_status,omitempty"`
	Actor      string                 `json:"actor,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// RoutingKey e.g. recon.batch.status_changed
func (e Event) RoutingKey() string {
	return "recon." + e.EntityType + "." + e.Type
}

// Sink receives events after commit
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Dispatcher delivers to every sink. Delivery is best-effort: the change is
// already committed, so failures are logged and counted only.
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	metrics *monitor.ReconMetrics
}

func NewDispatcher(logger *zap.Logger, metrics *monitor.ReconMetrics, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sinks: sinks, logger: logger, metrics: metrics}
}

func (d *Dispatcher) Emit(ctx context.Context, events ...Event) {
	if d == nil {
		return
	}
	for _, e := range events {
		for _, s := range d.sinks {
			if err := s.Send(ctx, e); err != nil {
				d.logger.Warn("event delivery failed",
					zap.String("sink", s.Name()),
					zap.String("type", e.Type),
					zap.String("code", e.Code),
					zap.Error(err))
				if d.metrics != nil {
					d.metrics.EventPublishFailure.WithLabelValues(s.Name()).Inc()
				}
			}
		}
	}
}

// HubSink pushes events to connected admin clients over SSE.
type HubSink struct {
	hub *sse.Hub
}

func NewHubSink(hub *sse.Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "sse" }

func (s *HubSink) Send(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.hub.Broadcast(sse.Event{EventType: e.EntityType + "_" + e.Type, Data: string(data)})
	return nil
}

// Publisher is satisfied by *mq.Queue.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
}

var _ Publisher = (*mq.Queue)(nil)

// QueueSink publishes events to the message broker.
type QueueSink struct {
	pub Publisher
}

func NewQueueSink(pub Publisher) *QueueSink {
	return &QueueSink{pub: pub}
}

func (s *QueueSink) Name() string { return "rabbitmq" }

func (s *QueueSink) Send(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, e.RoutingKey(), data)
}

// Recorder keeps events in memory; used by tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Send(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}
