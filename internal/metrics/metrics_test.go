package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/ata-marzban/filterd/internal/filter"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, label, value string) float64 {
	if mf == nil {
		return 0
	}
	for _, metric := range mf.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestObserveParse(t *testing.T) {
	m := New()

	f, err := filter.Parse("a=1,b=2")
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveParse(time.Millisecond, f, nil)

	_, err = filter.Parse("a=(x|y,z)")
	m.ObserveParse(time.Millisecond, nil, err)
	_, err = filter.Parse("a=")
	m.ObserveParse(time.Millisecond, nil, err)

	parses := family(t, m, "filterd_parse_total")
	if got := counterValue(parses, "result", "ok"); got != 1 {
		t.Errorf("ok parses = %v, want 1", got)
	}
	if got := counterValue(parses, "result", "mixed_separators"); got != 1 {
		t.Errorf("mixed_separators parses = %v, want 1", got)
	}
	if got := counterValue(parses, "result", "unterminated_operator"); got != 1 {
		t.Errorf("unterminated_operator parses = %v, want 1", got)
	}

	hist := family(t, m, "filterd_predicates_per_filter")
	if hist == nil {
		t.Fatal("predicates histogram not exported")
	}
	h := hist.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 || h.GetSampleSum() != 2 {
		t.Errorf("predicates histogram count=%d sum=%v, want 1 and 2", h.GetSampleCount(), h.GetSampleSum())
	}

	dur := family(t, m, "filterd_parse_duration_seconds")
	if dur.GetMetric()[0].GetHistogram().GetSampleCount() != 3 {
		t.Errorf("duration histogram should count every parse")
	}
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("/filterd.v1.FilterService/Parse", "OK")
	m.ObserveRequest("/filterd.v1.FilterService/Parse", "OK")

	if got := counterValue(family(t, m, "filterd_grpc_requests_total"), "code", "OK"); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveParse(time.Second, nil, nil)
	m.ObserveRequest("x", "OK")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("/filterd.v1.FilterService/Parse", "OK")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "filterd_grpc_requests_total") {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics output missing go collector")
	}
}
