package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/monitor"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/shared/sse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	keys []string
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, key string, _ []byte) error {
	f.keys = append(f.keys, key)
	return f.err
}

func TestDispatcherFansOut(t *testing.T) {
	hub := sse.NewHub(nil)
	client := &sse.Client{ID: "c1", Events: make(chan sse.Event, 4)}
	hub.Register(client)

	pub := &fakePublisher{}
	rec := &Recorder{}
	d := NewDispatcher(nil, nil, NewHubSink(hub), NewQueueSink(pub), rec)

	d.Emit(context.Background(), Event{
		Type:       TypeStatusChanged,
		EntityType: "batch",
		EntityID:   9,
		Code:       "PSB-202603-0001",
		FromStatus: "CHECKING",
		ToStatus:   "COMPLETED",
	})

	require.Len(t, rec.Events, 1)
	assert.Equal(t, []string{"recon.batch.status_changed"}, pub.keys)

	got := <-client.Events
	assert.Equal(t, "batch_status_changed", got.EventType)
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(got.Data), &decoded))
	assert.Equal(t, "COMPLETED", decoded.ToStatus)
}

func TestDispatcherCountsFailures(t *testing.T) {
	metrics := monitor.NewReconMetrics(prometheus.NewRegistry())
	pub := &fakePublisher{err: errors.New("broker down")}
	rec := &Recorder{}
	d := NewDispatcher(nil, metrics, NewQueueSink(pub), rec)

	d.Emit(context.Background(), Event{Type: TypeCreated, EntityType: "submission"})

	// one failing sink does not stop the others
	assert.Len(t, rec.Events, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventPublishFailure.WithLabelValues("rabbitmq")))
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{Type: TypeCreated})
}
