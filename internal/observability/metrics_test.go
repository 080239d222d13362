package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestCounterVecExposition(t *testing.T) {
	t.Parallel()

	c := NewCounterVec("sl_test_total", "test counter", []string{"route", "status"})
	c.Inc("/pipeline/submit", "200")
	c.Inc("/pipeline/submit", "200")
	c.Add(3, "/pipeline/submit", "500")

	var buf bytes.Buffer
	if err := c.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# HELP sl_test_total test counter\n",
		"# TYPE sl_test_total counter\n",
		`sl_test_total{route="/pipeline/submit",status="200"} 2.000000`,
		`sl_test_total{route="/pipeline/submit",status="500"} 3.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestCounterValue(t *testing.T) {
	t.Parallel()

	c := NewCounter("sl_plain_total", "plain counter")
	c.Inc()
	c.Add(2.5)
	if got := c.Value(); got != 3.5 {
		t.Errorf("Value = %f, want 3.5", got)
	}

	var buf bytes.Buffer
	if err := c.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	if !strings.Contains(buf.String(), "sl_plain_total 3.500000") {
		t.Errorf("exposition = %q", buf.String())
	}
}

func TestGaugeSetIncDec(t *testing.T) {
	t.Parallel()

	g := NewGauge("sl_inflight", "in-flight requests")
	g.Set(4)
	g.Inc()
	g.Dec()
	g.Dec()

	var buf bytes.Buffer
	if err := g.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "# TYPE sl_inflight gauge") {
		t.Errorf("missing gauge type line:\n%s", out)
	}
	if !strings.Contains(out, "sl_inflight 3.000000") {
		t.Errorf("gauge value wrong:\n%s", out)
	}
}

func TestGaugeVecSetOverwrites(t *testing.T) {
	t.Parallel()

	g := NewGaugeVec("sl_queue_depth", "jobs by status", []string{"status"})
	g.Set(10, "pending")
	g.Set(4, "pending")
	g.Set(1, "running")

	var buf bytes.Buffer
	if err := g.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `sl_queue_depth{status="pending"} 4.000000`) {
		t.Errorf("pending gauge not overwritten:\n%s", out)
	}
	if !strings.Contains(out, `sl_queue_depth{status="running"} 1.000000`) {
		t.Errorf("running gauge missing:\n%s", out)
	}
}

func TestHistogramVecBucketsAreCumulative(t *testing.T) {
	t.Parallel()

	h := NewHistogramVec("sl_dur_seconds", "durations", []string{"stage"}, []float64{0.1, 1, 10})
	h.Observe(0.05, "scoring")
	h.Observe(0.5, "scoring")
	h.Observe(5, "scoring")
	h.Observe(50, "scoring")

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`sl_dur_seconds_bucket{stage="scoring",le="0.1"} 1`,
		`sl_dur_seconds_bucket{stage="scoring",le="1"} 2`,
		`sl_dur_seconds_bucket{stage="scoring",le="10"} 3`,
		`sl_dur_seconds_bucket{stage="scoring",le="+Inf"} 4`,
		`sl_dur_seconds_sum{stage="scoring"} 55.550000`,
		`sl_dur_seconds_count{stage="scoring"} 4`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestHistogramVecDefaultBuckets(t *testing.T) {
	t.Parallel()

	h := NewHistogramVec("sl_default", "default buckets", nil, nil)
	h.Observe(0.3)

	var buf bytes.Buffer
	if err := h.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `sl_default_bucket{le="0.5"} 1`) {
		t.Errorf("default buckets not applied:\n%s", out)
	}
	if !strings.Contains(out, `sl_default_bucket{le="+Inf"} 1`) {
		t.Errorf("+Inf bucket missing:\n%s", out)
	}
}

func TestLabelString(t *testing.T) {
	t.Parallel()

	if got := labelString(nil, nil); got != "" {
		t.Errorf("no labels = %q, want empty", got)
	}
	if got := labelString([]string{"a", "b"}, []string{"x"}); got != `{a="x",b="unknown"}` {
		t.Errorf("missing value fill = %q", got)
	}
	if got := labelString([]string{"msg"}, []string{"say \"hi\"\nnow"}); got != `{msg="say \"hi\"\nnow"}` {
		t.Errorf("escaping = %q", got)
	}
}

func TestWithLe(t *testing.T) {
	t.Parallel()

	if got := withLe("", "0.5"); got != `{le="0.5"}` {
		t.Errorf("empty labels = %q", got)
	}
	if got := withLe(`{stage="x"}`, "+Inf"); got != `{stage="x",le="+Inf"}` {
		t.Errorf("appended le = %q", got)
	}
}

func TestStatusClassifiers(t *testing.T) {
	t.Parallel()

	if !isServerErrorStatus("503") || isServerErrorStatus("404") || isServerErrorStatus("") {
		t.Error("isServerErrorStatus misclassified")
	}
	for _, s := range []string{"failed", "ERROR", " timeout ", "panic"} {
		if !isFailureStatus(s) {
			t.Errorf("isFailureStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"completed", "cancelled", ""} {
		if isFailureStatus(s) {
			t.Errorf("isFailureStatus(%q) = true, want false", s)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", 0)
	m.ObserveJob("completed", 0)
	m.AddCost("scoring", "score_profiles", 0.0015)
	m.IncDataQuality("enrichment", "parse_error", "k")
}
