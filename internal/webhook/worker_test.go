package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/road_hazard_engine/internal/config"
	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(cfg *config.Config) *WebhookWorker {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	w := NewWebhookWorker(nil, nil, logger, cfg)
	w.sleep = func(time.Duration) {}
	return w
}

func TestWebhookWorker_Deliver_SignsPayload(t *testing.T) {
	var gotSignature, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookSecret:     "secret",
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
	})

	event := WebhookEvent{EventType: "alert.created", AlertID: uuid.New(), UserID: "user-1"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = worker.deliver(context.Background(), event, string(payload))
	require.NoError(t, err)
	assert.Equal(t, string(payload), gotBody)
	assert.Equal(t, generateHMACSHA256(string(payload), "secret"), gotSignature)
}

func TestWebhookWorker_Deliver_RetriesWithBackoff(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
		WebhookBaseDelay:  100 * time.Millisecond,
	})
	var delays []time.Duration
	worker.sleep = func(d time.Duration) { delays = append(delays, d) }

	err := worker.deliver(context.Background(), WebhookEvent{AlertID: uuid.New()}, "{}")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestWebhookWorker_Deliver_GivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 2,
	})

	err := worker.deliver(context.Background(), WebhookEvent{AlertID: uuid.New()}, "{}")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookWorker_Deliver_NoURL(t *testing.T) {
	worker := newTestWorker(&config.Config{WebhookTimeout: time.Second})
	assert.NoError(t, worker.deliver(context.Background(), WebhookEvent{}, "{}"))
}

type recordingPublisher struct {
	events []WebhookEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event WebhookEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func TestSender_Send(t *testing.T) {
	pub := &recordingPublisher{}
	sender := NewSender(pub)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sender.now = func() time.Time { return now }

	hazardID := uuid.New()
	alert := &models.Alert{
		ID:       uuid.New(),
		UserID:   "driver-7",
		HazardID: &hazardID,
		Priority: models.PriorityUrgent,
		Title:    "Pothole ahead",
	}

	require.NoError(t, sender.Send(context.Background(), alert))
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "alert.created", ev.EventType)
	assert.Equal(t, alert.ID, ev.AlertID)
	assert.Equal(t, "driver-7", ev.UserID)
	assert.Equal(t, &hazardID, ev.HazardID)
	assert.Equal(t, now, ev.Timestamp)
	assert.Equal(t, ChannelWebhook, sender.Channel())
}

type recordedFailure struct {
	alertID uuid.UUID
	channel string
	reason  string
}

type fakeFailureRecorder struct {
	calls []recordedFailure
}

func (f *fakeFailureRecorder) RecordChannelFailure(_ context.Context, alertID uuid.UUID, channel, reason string) (*models.Alert, error) {
	f.calls = append(f.calls, recordedFailure{alertID: alertID, channel: channel, reason: reason})
	return &models.Alert{ID: alertID}, nil
}

func TestWebhookWorker_Process_RecordsAbandonedDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 2,
	})
	recorder := &fakeFailureRecorder{}
	worker.failures = recorder

	event := WebhookEvent{EventType: "alert.created", AlertID: uuid.New(), UserID: "user-1"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	worker.process(context.Background(), string(payload))

	require.Len(t, recorder.calls, 1)
	assert.Equal(t, event.AlertID, recorder.calls[0].alertID)
	assert.Equal(t, ChannelWebhook, recorder.calls[0].channel)
	assert.Contains(t, recorder.calls[0].reason, "after 2 attempts")
}

func TestWebhookWorker_Process_DeliveredIsNotRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 2,
	})
	recorder := &fakeFailureRecorder{}
	worker.failures = recorder

	worker.process(context.Background(), `{"alert_id":"`+uuid.NewString()+`"}`)

	assert.Empty(t, recorder.calls)
}
