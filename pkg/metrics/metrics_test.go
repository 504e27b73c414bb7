package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	reg := New()
	c := reg.Counter("requests_total", "Total requests.")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d", c.Value())
	}

	g := reg.Gauge("inflight", "")
	g.Set(3)
	g.Inc()
	g.Dec()
	if g.Value() != 3 {
		t.Errorf("gauge = %d", g.Value())
	}

	// Same name returns the same metric.
	if reg.Counter("requests_total", "") != c {
		t.Error("counter not deduplicated")
	}
}

func TestWithLabels(t *testing.T) {
	name := WithLabels("requests_total", "method", "POST", "path", "/api/ask")
	if name != `requests_total{method="POST",path="/api/ask"}` {
		t.Errorf("got %q", name)
	}
	if WithLabels("x", "odd") != "x" {
		t.Error("odd label pairs should return the bare name")
	}
}

func TestRender(t *testing.T) {
	reg := New()
	reg.Counter("asks_total", "Total asks.").Add(7)
	reg.Counter(WithLabels("asks_total", "status", "error"), "").Add(2)
	reg.Gauge("ready", "").Set(1)

	out := reg.Render()
	for _, want := range []string{
		"# HELP asks_total Total asks.",
		"# TYPE asks_total counter",
		"asks_total 7",
		`asks_total{status="error"} 2`,
		"ready 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHistogramRender(t *testing.T) {
	reg := New()
	h := reg.Histogram("latency_seconds", "Request latency.", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	out := reg.Render()
	for _, want := range []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="10"} 3`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	reg := New()
	reg.Counter("hits_total", "").Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
