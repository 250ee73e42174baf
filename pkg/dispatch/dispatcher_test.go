package dispatch

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pulsewire/pulsewire-go/pkg/event"
	"github.com/pulsewire/pulsewire-go/pkg/subscription"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDispatcher() (*subscription.Store, *Dispatcher) {
	store := subscription.NewStore(subscription.DefaultConfig())
	return store, New(store, DefaultConfig(), nil)
}

func TestPublishMatchesByKindAndFilter(t *testing.T) {
	store, d := newTestDispatcher()
	defer d.Close()

	invoiceSub, err := store.Create("c1", event.KindResourceChange,
		&subscription.Filter{ResourceTypes: []string{"invoice"}}, "", time.Hour)
	require.NoError(t, err)

	receiptEv := event.New(event.KindResourceChange, "", map[string]any{"resourceType": "receipt"})
	assert.Equal(t, 0, d.Publish(receiptEv), "receipt event should match nothing")
	assert.Equal(t, uint64(0), invoiceSub.NotificationCount())

	invoiceEv := event.New(event.KindResourceChange, "", map[string]any{"resourceType": "invoice"})
	assert.Equal(t, 1, d.Publish(invoiceEv))
	assert.Equal(t, uint64(1), invoiceSub.NotificationCount())
	assert.Equal(t, uint64(1), d.Dispatched())
}

func TestPublishSkipsPausedAndWrongKind(t *testing.T) {
	store, d := newTestDispatcher()
	defer d.Close()

	paused, err := store.Create("c1", event.KindTaskUpdate, nil, "", time.Hour)
	require.NoError(t, err)
	_, err = store.Pause(paused.ID)
	require.NoError(t, err)

	_, err = store.Create("c1", event.KindToolExecution, nil, "", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 0, d.Publish(event.New(event.KindTaskUpdate, "", nil)))
}

func TestCallbacksReceiveNotifications(t *testing.T) {
	store, d := newTestDispatcher()
	defer d.Close()

	sub, err := store.Create("c1", event.KindCustom, nil, "", time.Hour)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []Notification
	d.OnNotification(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
	})

	ev := event.New(event.KindCustom, "billing", map[string]any{"k": "v"})
	d.Publish(ev)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, sub.ID, got[0].SubscriptionID)
	assert.Equal(t, ev.ID, got[0].EventID)
	assert.Equal(t, "c1", got[0].Metadata["clientId"])
	assert.Equal(t, "billing", got[0].Metadata["topic"])
	assert.Equal(t, uint64(1), d.CallbackCount())
}

func TestPanickingCallbackIsIsolated(t *testing.T) {
	store, d := newTestDispatcher()
	defer d.Close()

	_, err := store.Create("c1", event.KindCustom, nil, "", time.Hour)
	require.NoError(t, err)

	var delivered int
	d.OnNotification(func(Notification) { panic("boom") })
	d.OnNotification(func(Notification) { delivered++ })

	require.NotPanics(t, func() {
		d.Publish(event.New(event.KindCustom, "", nil))
	})
	assert.Equal(t, 1, delivered, "callback after the panicking one still runs")
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, d := newTestDispatcher()
	sub, err := store.Create("c1", event.KindPaymentUpdate, nil, srv.URL, time.Hour)
	require.NoError(t, err)

	ev := event.New(event.KindPaymentUpdate, "", map[string]any{"amount": "12.50"})
	d.Publish(ev)
	d.Close()
	d.client.CloseIdleConnections()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)

	var n Notification
	require.NoError(t, json.Unmarshal(bodies[0], &n))
	assert.Equal(t, sub.ID, n.SubscriptionID)
	assert.Equal(t, ev.ID, n.EventID)
	assert.Equal(t, "12.50", n.Data["amount"])

	assert.Equal(t, uint64(1), d.WebhookCount())
	assert.Equal(t, uint64(0), d.WebhookFailures())
	assert.Equal(t, uint64(0), sub.ErrorCount())
}

func TestWebhookFailureRecordsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store, d := newTestDispatcher()
	sub, err := store.Create("c1", event.KindCustom, nil, srv.URL, time.Hour)
	require.NoError(t, err)

	d.Publish(event.New(event.KindCustom, "", nil))
	d.Close()
	d.client.CloseIdleConnections()

	assert.Equal(t, uint64(1), d.WebhookFailures())
	assert.Equal(t, uint64(1), sub.ErrorCount())
	// The dispatch itself still counts: matching happened.
	assert.Equal(t, uint64(1), sub.NotificationCount())
}

func TestWebhookUnreachableEndpoint(t *testing.T) {
	store, d := newTestDispatcher()
	sub, err := store.Create("c1", event.KindCustom, nil, "http://127.0.0.1:1/hook", time.Hour)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		d.Publish(event.New(event.KindCustom, "", nil))
		d.Close()
	})
	assert.Equal(t, uint64(1), sub.ErrorCount())
}

func TestSinkKindString(t *testing.T) {
	assert.Equal(t, "CALLBACK", SinkCallback.String())
	assert.Equal(t, "WEBHOOK", SinkWebhook.String())
	assert.Equal(t, "UNKNOWN", SinkKind(7).String())
}
