package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics_Record_And_Expose(t *testing.T) {
	req := require.New(t)
	m := New()

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.ActiveCalls(3)
	m.Dropped(2)
	m.Dropped(0)
	m.Signal("webrtc-offer", "relayed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	out := string(body)
	req.Contains(out, "huddle_connections 1")
	req.Contains(out, "huddle_active_calls 3")
	req.Contains(out, "huddle_broadcast_dropped_total 2")
	req.Contains(out, `huddle_signals_total{event="webrtc-offer",result="relayed"} 1`)
}

func TestMetrics_Nil_Is_Noop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ConnOpened()
		m.MessageSent()
		m.Membership("ok")
		m.Rejected("internal")
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 404, rec.Code)
}
