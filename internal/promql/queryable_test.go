package promql

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/tsdb/chunkenc"
	"google.golang.org/genproto/googleapis/api/monitoredres"

	"github.com/ata-marzban/filterd/internal/store"
)

const testProject = "test-project"

func seedStore(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	resources := map[string]*monitoredres.MonitoredResource{
		"vm-1": {Type: "gce_instance", Labels: map[string]string{"instance_id": "1", "zone": "us-east1-b"}},
		"vm-2": {Type: "gce_instance", Labels: map[string]string{"instance_id": "2", "zone": "us-east1-c"}},
		"pod-1": {Type: "k8s_pod", Labels: map[string]string{
			"cluster_name": "prod", "namespace_name": "default", "pod_name": "web-0",
		}},
	}
	for id, r := range resources {
		if _, err := s.CreateResource(ctx, testProject, id, r); err != nil {
			t.Fatal(err)
		}
	}
	// A resource in another project must never show up.
	if _, err := s.CreateResource(ctx, "other", "vm-9", resources["vm-1"]); err != nil {
		t.Fatal(err)
	}
}

func TestResourceLabels(t *testing.T) {
	r := &store.Resource{
		Name:    "projects/p/resources/vm-1",
		Project: "p",
		ID:      "vm-1",
		Resource: &monitoredres.MonitoredResource{
			Type:   "gce_instance",
			Labels: map[string]string{"zone": "us-east1-b", "instance-id": "1"},
		},
	}

	got := ResourceLabels(r)
	want := labels.FromStrings(
		labels.MetricName, InfoMetric,
		"name", "projects/p/resources/vm-1",
		"project", "p",
		"id", "vm-1",
		"type", "gce_instance",
		"labels_zone", "us-east1-b",
		"labels_instance_id", "1",
	)
	if labels.Compare(got, want) != 0 {
		t.Errorf("ResourceLabels() = %s, want %s", got, want)
	}
}

func newQuerier(t *testing.T) *storeQuerier {
	t.Helper()
	s := store.NewMemoryStore()
	seedStore(t, s)
	now := time.Now()
	q, err := (&StoreQueryable{Store: s, Project: testProject}).Querier(now.Add(-time.Hour).UnixMilli(), now.UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	return q.(*storeQuerier)
}

func TestSelect(t *testing.T) {
	q := newQuerier(t)
	ctx := context.Background()

	ss := q.Select(ctx, true, nil)
	var names []string
	for ss.Next() {
		names = append(names, ss.At().Labels().Get("id"))
	}
	if ss.Err() != nil {
		t.Fatal(ss.Err())
	}
	if len(names) != 3 {
		t.Fatalf("got %d series, want 3: %v", len(names), names)
	}
}

func TestSelectWithMatcher(t *testing.T) {
	q := newQuerier(t)
	ctx := context.Background()

	ss := q.Select(ctx, true, nil,
		labels.MustNewMatcher(labels.MatchEqual, "type", "gce_instance"),
		labels.MustNewMatcher(labels.MatchRegexp, "labels_zone", ".*-c"),
	)
	var ids []string
	for ss.Next() {
		ids = append(ids, ss.At().Labels().Get("id"))
	}
	if len(ids) != 1 || ids[0] != "vm-2" {
		t.Errorf("got %v, want [vm-2]", ids)
	}
}

func TestSelectSorted(t *testing.T) {
	q := newQuerier(t)

	ss := q.Select(context.Background(), true, nil)
	var prev labels.Labels
	for ss.Next() {
		cur := ss.At().Labels()
		if prev.Len() > 0 && labels.Compare(prev, cur) > 0 {
			t.Errorf("series not sorted: %s before %s", prev, cur)
		}
		prev = cur
	}
}

func TestLabelValues(t *testing.T) {
	q := newQuerier(t)

	values, _, err := q.LabelValues(context.Background(), "type", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0] != "gce_instance" || values[1] != "k8s_pod" {
		t.Errorf("got %v, want [gce_instance k8s_pod]", values)
	}

	values, _, err = q.LabelValues(context.Background(), "labels_zone", nil,
		labels.MustNewMatcher(labels.MatchEqual, "id", "vm-1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != "us-east1-b" {
		t.Errorf("got %v, want [us-east1-b]", values)
	}
}

func TestLabelNames(t *testing.T) {
	q := newQuerier(t)

	names, _, err := q.LabelNames(context.Background(), nil,
		labels.MustNewMatcher(labels.MatchEqual, "type", "k8s_pod"))
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		labels.MetricName: true, "name": true, "project": true, "id": true, "type": true,
		"labels_cluster_name": true, "labels_namespace_name": true, "labels_pod_name": true,
	}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %d names", names, len(want))
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected label name %q", n)
		}
	}
}

func TestStepIteratorNextAndAt(t *testing.T) {
	s := &infoSeries{mint: 0, maxt: 60000}
	it := s.Iterator(nil)

	for _, want := range []int64{0, 15000, 30000, 45000, 60000} {
		if vt := it.Next(); vt != chunkenc.ValFloat {
			t.Fatalf("t=%d: Next() = %v, want ValFloat", want, vt)
		}
		ts, v := it.At()
		if ts != want || v != 1 {
			t.Errorf("At() = (%d, %f), want (%d, 1)", ts, v, want)
		}
		if it.AtT() != want {
			t.Errorf("AtT() = %d, want %d", it.AtT(), want)
		}
	}

	if vt := it.Next(); vt != chunkenc.ValNone {
		t.Errorf("Next() after exhaustion = %v, want ValNone", vt)
	}
}

func TestStepIteratorSeek(t *testing.T) {
	s := &infoSeries{mint: 1000, maxt: 60000}
	it := s.Iterator(nil)

	// Seek rounds up to the next step.
	if vt := it.Seek(20000); vt != chunkenc.ValFloat {
		t.Fatalf("Seek(20000) = %v, want ValFloat", vt)
	}
	if ts := it.AtT(); ts != 30000 {
		t.Errorf("AtT() = %d, want 30000", ts)
	}

	// Seek to earlier value should stay at current position.
	if vt := it.Seek(1000); vt != chunkenc.ValFloat {
		t.Fatalf("Seek(1000) = %v, want ValFloat", vt)
	}
	if ts := it.AtT(); ts != 30000 {
		t.Errorf("Seek to earlier should not move back, got t=%d", ts)
	}

	// Seek past all samples.
	if vt := it.Seek(99999); vt != chunkenc.ValNone {
		t.Fatalf("Seek(99999) = %v, want ValNone", vt)
	}
	if vt := it.Seek(0); vt != chunkenc.ValNone {
		t.Errorf("Seek after exhaustion = %v, want ValNone", vt)
	}
}
