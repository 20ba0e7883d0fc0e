package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.FramesClassified.Add(3)
	m.Transitions.Add(1)
	SetBool(&m.SessionActive, true)
	m.SetProbability(0.875)
	m.WSConnections.Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"monkey_alert_frames_classified_total 3",
		"monkey_alert_transitions_total 1",
		"monkey_alert_session_active 1",
		"monkey_alert_monkey_probability 0.875",
		"monkey_alert_ws_connections 2",
		"# TYPE monkey_alert_frame_errors_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSetBool(t *testing.T) {
	m := New()
	SetBool(&m.AlertPlaying, true)
	SetBool(&m.AlertPlaying, false)
	if m.AlertPlaying.Load() != 0 {
		t.Error("SetBool(false) should store 0")
	}
}
