package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchpilot/switchpilot/internal/notify"
)

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	r.events = append(r.events, ev)
}

type staticFlags struct {
	disabled bool
}

func (f staticFlags) NotificationsDisabled(context.Context) bool { return f.disabled }

func TestMulti_FansOut(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	m := notify.Multi{a, b}

	m.Notify(context.Background(), notify.Event{Team: "payments", Action: "switch"})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, "payments", a.events[0].Team)
}

func TestGated_SuppressesWhenDisabled(t *testing.T) {
	inner := &recordingNotifier{}
	g := notify.Gated{Inner: inner, Flags: staticFlags{disabled: true}}

	g.Notify(context.Background(), notify.Event{Team: "payments"})
	assert.Empty(t, inner.events)

	g = notify.Gated{Inner: inner, Flags: staticFlags{disabled: false}}
	g.Notify(context.Background(), notify.Event{Team: "payments"})
	assert.Len(t, inner.events, 1)
}

func TestGated_NilFlagsDelivers(t *testing.T) {
	inner := &recordingNotifier{}
	g := notify.Gated{Inner: inner}

	g.Notify(context.Background(), notify.Event{Team: "payments"})
	assert.Len(t, inner.events, 1)
}

func TestWebhook_PostsEventAsJSON(t *testing.T) {
	var got notify.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := notify.NewWebhook(srv.URL, time.Second, zerolog.Nop())
	wh.Notify(context.Background(), notify.Event{
		Team:     "payments",
		Action:   "switch",
		Result:   "success",
		Severity: notify.SeverityInfo,
		At:       time.Now(),
	})

	assert.Equal(t, "payments", got.Team)
	assert.Equal(t, notify.SeverityInfo, got.Severity)
}

func TestWebhook_DeliveryFailureDoesNotPanic(t *testing.T) {
	wh := notify.NewWebhook("http://127.0.0.1:1", 200*time.Millisecond, zerolog.Nop())
	wh.Notify(context.Background(), notify.Event{Team: "payments", Action: "switch"})
}
