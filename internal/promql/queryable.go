package promql

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/prometheus/model/histogram"
	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/storage"
	"github.com/prometheus/prometheus/tsdb/chunkenc"
	"github.com/prometheus/prometheus/util/annotations"

	"github.com/ata-marzban/filterd/internal/store"
)

// InfoMetric is the metric name under which every stored resource is
// exposed as a constant 1 series.
const InfoMetric = "monitored_resource_info"

// sampleStep is the spacing of the synthetic samples of an info series.
const sampleStep = 15 * time.Second

// maxSampleWindow bounds how far back synthetic samples are generated.
const maxSampleWindow = 7 * 24 * time.Hour

// ResourceLabels converts a stored resource to Prometheus labels. The label
// names are the filter field paths passed through LabelName, so a filter
// over the inventory and a selector over the series agree.
//
// Mapping:
//   - InfoMetric        → __name__
//   - name, project, id → name, project, id
//   - resource.type     → type
//   - resource.labels.X → labels_X
func ResourceLabels(r *store.Resource) labels.Labels {
	b := labels.NewBuilder(labels.EmptyLabels())

	b.Set(labels.MetricName, InfoMetric)
	b.Set("name", r.Name)
	b.Set("project", r.Project)
	b.Set("id", r.ID)
	b.Set("type", r.Resource.GetType())

	for k, v := range r.Resource.GetLabels() {
		b.Set(LabelName("labels."+k), v)
	}

	return b.Labels()
}

// StoreQueryable implements storage.Queryable backed by the resource
// inventory, scoped to a project.
type StoreQueryable struct {
	Store   store.Store
	Project string
}

func (q *StoreQueryable) Querier(mint, maxt int64) (storage.Querier, error) {
	return &storeQuerier{
		store:   q.Store,
		project: q.Project,
		mint:    mint,
		maxt:    maxt,
	}, nil
}

type storeQuerier struct {
	store   store.Store
	project string
	mint    int64 // milliseconds since epoch
	maxt    int64 // milliseconds since epoch
}

// matching returns the label sets of every resource in the project that
// satisfies all matchers.
func (q *storeQuerier) matching(ctx context.Context, matchers []*labels.Matcher) ([]labels.Labels, error) {
	resources, err := q.store.ListResources(ctx, q.project, "")
	if err != nil {
		return nil, err
	}
	var out []labels.Labels
	for _, r := range resources {
		lset := ResourceLabels(r)
		if matchAll(lset, matchers) {
			out = append(out, lset)
		}
	}
	return out, nil
}

func (q *storeQuerier) Select(ctx context.Context, sortSeries bool, _ *storage.SelectHints, matchers ...*labels.Matcher) storage.SeriesSet {
	sets, err := q.matching(ctx, matchers)
	if err != nil {
		return storage.ErrSeriesSet(err)
	}

	result := make([]storage.Series, 0, len(sets))
	for _, lset := range sets {
		result = append(result, &infoSeries{labels: lset, mint: q.mint, maxt: q.maxt})
	}

	if sortSeries {
		sort.Slice(result, func(i, j int) bool {
			return labels.Compare(result[i].Labels(), result[j].Labels()) < 0
		})
	}

	return newSeriesSet(result)
}

func (q *storeQuerier) LabelValues(ctx context.Context, name string, _ *storage.LabelHints, matchers ...*labels.Matcher) ([]string, annotations.Annotations, error) {
	sets, err := q.matching(ctx, matchers)
	if err != nil {
		return nil, nil, err
	}

	seen := map[string]struct{}{}
	for _, lset := range sets {
		if v := lset.Get(name); v != "" {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen), nil, nil
}

func (q *storeQuerier) LabelNames(ctx context.Context, _ *storage.LabelHints, matchers ...*labels.Matcher) ([]string, annotations.Annotations, error) {
	sets, err := q.matching(ctx, matchers)
	if err != nil {
		return nil, nil, err
	}

	seen := map[string]struct{}{}
	for _, lset := range sets {
		lset.Range(func(l labels.Label) {
			seen[l.Name] = struct{}{}
		})
	}
	return sortedKeys(seen), nil, nil
}

func (q *storeQuerier) Close() error {
	return nil
}

func matchAll(lset labels.Labels, matchers []*labels.Matcher) bool {
	for _, m := range matchers {
		if !m.Matches(lset.Get(m.Name)) {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// --- SeriesSet ---

type storeSeriesSet struct {
	series []storage.Series
	idx    int
}

func newSeriesSet(series []storage.Series) storage.SeriesSet {
	return &storeSeriesSet{series: series, idx: -1}
}

func (s *storeSeriesSet) Next() bool {
	s.idx++
	return s.idx < len(s.series)
}

func (s *storeSeriesSet) At() storage.Series {
	return s.series[s.idx]
}

func (s *storeSeriesSet) Err() error {
	return nil
}

func (s *storeSeriesSet) Warnings() annotations.Annotations {
	return nil
}

// --- Series ---

// infoSeries is a constant 1 series with a sample every sampleStep in
// [mint, maxt], aligned to the step.
type infoSeries struct {
	labels     labels.Labels
	mint, maxt int64
}

func (s *infoSeries) Labels() labels.Labels {
	return s.labels
}

func (s *infoSeries) Iterator(_ chunkenc.Iterator) chunkenc.Iterator {
	step := sampleStep.Milliseconds()
	first := s.mint
	if window := s.maxt - maxSampleWindow.Milliseconds(); first < window {
		first = window
	}
	if rem := first % step; rem != 0 {
		first += step - rem
	}
	return &stepIterator{first: first, last: s.maxt, step: step, t: first - step}
}

// --- Sample Iterator ---

type stepIterator struct {
	first, last, step int64
	t                 int64
}

func (it *stepIterator) Next() chunkenc.ValueType {
	it.t += it.step
	if it.t > it.last {
		return chunkenc.ValNone
	}
	return chunkenc.ValFloat
}

func (it *stepIterator) Seek(t int64) chunkenc.ValueType {
	// If current position already satisfies, no-op.
	if it.t >= it.first && it.t <= it.last && it.t >= t {
		return chunkenc.ValFloat
	}
	if t < it.first {
		t = it.first
	}
	if rem := (t - it.first) % it.step; rem != 0 {
		t += it.step - rem
	}
	if t < it.t {
		t = it.t + it.step
	}
	it.t = t
	if it.t > it.last {
		return chunkenc.ValNone
	}
	return chunkenc.ValFloat
}

func (it *stepIterator) At() (int64, float64) {
	return it.t, 1
}

func (it *stepIterator) AtHistogram(_ *histogram.Histogram) (int64, *histogram.Histogram) {
	return 0, nil
}

func (it *stepIterator) AtFloatHistogram(_ *histogram.FloatHistogram) (int64, *histogram.FloatHistogram) {
	return 0, nil
}

func (it *stepIterator) AtT() int64 {
	return it.t
}

func (it *stepIterator) Err() error {
	return nil
}
