package promql

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/promql"
	"github.com/prometheus/prometheus/promql/parser"
	"github.com/prometheus/prometheus/storage"

	"github.com/ata-marzban/filterd/internal/filter"
	"github.com/ata-marzban/filterd/internal/store"
)

// apiResponse is the standard Prometheus API response envelope.
type apiResponse struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	ErrorType string      `json:"errorType,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type queryData struct {
	ResultType string      `json:"resultType"`
	Result     interface{} `json:"result"`
}

type vectorItem struct {
	Metric map[string]string `json:"metric"`
	Value  [2]interface{}    `json:"value"`
}

type matrixItem struct {
	Metric map[string]string `json:"metric"`
	Values [][2]interface{}  `json:"values"`
}

type selectorData struct {
	Selector string   `json:"selector"`
	Matchers []string `json:"matchers"`
}

// Handler serves filter translation and a Prometheus-compatible HTTP API
// over the resource inventory.
//
// Paths:
//
//	/v1/selector?filter=...&metric=...
//	/v1/projects/{project}/location/{location}/prometheus/api/v1/{endpoint}
type Handler struct {
	store  store.Store
	engine *promql.Engine
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(s store.Store) http.Handler {
	return &Handler{
		store: s,
		engine: promql.NewEngine(promql.EngineOpts{
			MaxSamples:           50000000,
			Timeout:              2 * time.Minute,
			EnableAtModifier:     true,
			EnableNegativeOffset: true,
			LookbackDelta:        5 * time.Minute,
		}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/selector" {
		h.selector(w, r)
		return
	}

	project, endpoint, ok := parsePromPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "bad_data", "invalid Prometheus API path")
		return
	}

	switch endpoint {
	case "query":
		h.query(w, r, project)
	case "query_range":
		h.queryRange(w, r, project)
	case "series":
		h.series(w, r, project)
	case "labels":
		h.labelNames(w, r, project)
	default:
		if name, found := parseLabelValuesEndpoint(endpoint); found {
			h.labelValues(w, r, project, name)
			return
		}
		writeError(w, http.StatusNotFound, "bad_data", "unknown endpoint: "+endpoint)
	}
}

// --- Endpoint handlers ---

func (h *Handler) selector(w http.ResponseWriter, r *http.Request) {
	f, err := filter.Parse(r.FormValue("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid filter: %v", err))
		return
	}
	ms, err := Matchers(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	sel, err := renderSelector(r.FormValue("metric"), ms)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	data := selectorData{Selector: sel, Matchers: make([]string, 0, len(ms))}
	for _, m := range ms {
		data.Matchers = append(data.Matchers, m.String())
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: data})
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request, project string) {
	ts, err := parseTime(r.FormValue("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid time: %v", err))
		return
	}
	h.run(w, r, func(q storage.Queryable, qs string) (promql.Query, error) {
		return h.engine.NewInstantQuery(r.Context(), q, nil, qs, ts)
	}, project)
}

func (h *Handler) queryRange(w http.ResponseWriter, r *http.Request, project string) {
	var bounds [2]time.Time
	for i, name := range []string{"start", "end"} {
		t, err := parseTime(r.FormValue(name))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid %s: %v", name, err))
			return
		}
		bounds[i] = t
	}
	step, err := parseDuration(r.FormValue("step"))
	if err != nil || step <= 0 {
		writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid step: %v", err))
		return
	}
	h.run(w, r, func(q storage.Queryable, qs string) (promql.Query, error) {
		return h.engine.NewRangeQuery(r.Context(), q, nil, qs, bounds[0], bounds[1], step)
	}, project)
}

// run evaluates the request's expression against the project's resources.
// Without a query parameter, the expression is the info metric selected by
// the filter parameter.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, newQuery func(storage.Queryable, string) (promql.Query, error), project string) {
	qs := r.FormValue("query")
	if qs == "" {
		text := r.FormValue("filter")
		if text == "" {
			writeError(w, http.StatusBadRequest, "bad_data", "missing query parameter")
			return
		}
		f, err := filter.Parse(text)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_data", fmt.Sprintf("invalid filter: %v", err))
			return
		}
		if qs, err = Selector(InfoMetric, f); err != nil {
			writeError(w, http.StatusBadRequest, "bad_data", err.Error())
			return
		}
	}

	qry, err := newQuery(&StoreQueryable{Store: h.store, Project: project}, qs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	defer qry.Close()

	res := qry.Exec(r.Context())
	if res.Err != nil {
		writeError(w, http.StatusUnprocessableEntity, "execution", res.Err.Error())
		return
	}
	writeQueryResult(w, res)
}

func (h *Handler) series(w http.ResponseWriter, r *http.Request, project string) {
	sets, err := matcherSets(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	if len(sets) == 0 {
		writeError(w, http.StatusBadRequest, "bad_data", "no match[] or filter parameter provided")
		return
	}

	querier, err := h.querier(r, project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "execution", err.Error())
		return
	}
	defer querier.Close()

	seen := map[uint64]struct{}{}
	result := []map[string]string{}

	for _, matchers := range sets {
		ss := querier.Select(r.Context(), true, nil, matchers...)
		for ss.Next() {
			lset := ss.At().Labels()
			key := lset.Hash()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, labelsToMap(lset))
		}
		if ss.Err() != nil {
			writeError(w, http.StatusInternalServerError, "execution", ss.Err().Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: result})
}

func (h *Handler) labelNames(w http.ResponseWriter, r *http.Request, project string) {
	h.collect(w, r, project, func(q storage.Querier, ms []*labels.Matcher) ([]string, error) {
		names, _, err := q.LabelNames(r.Context(), nil, ms...)
		return names, err
	})
}

func (h *Handler) labelValues(w http.ResponseWriter, r *http.Request, project string, labelName string) {
	h.collect(w, r, project, func(q storage.Querier, ms []*labels.Matcher) ([]string, error) {
		values, _, err := q.LabelValues(r.Context(), labelName, nil, ms...)
		return values, err
	})
}

// collect unions the strings returned by fn over every matcher set of the
// request, or runs fn once without matchers when none are given.
func (h *Handler) collect(w http.ResponseWriter, r *http.Request, project string, fn func(storage.Querier, []*labels.Matcher) ([]string, error)) {
	sets, err := matcherSets(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_data", err.Error())
		return
	}
	if len(sets) == 0 {
		sets = [][]*labels.Matcher{nil}
	}

	querier, err := h.querier(r, project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "execution", err.Error())
		return
	}
	defer querier.Close()

	set := map[string]struct{}{}
	for _, ms := range sets {
		out, err := fn(querier, ms)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "execution", err.Error())
			return
		}
		for _, s := range out {
			set[s] = struct{}{}
		}
	}
	writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: sortedKeys(set)})
}

func (h *Handler) querier(r *http.Request, project string) (storage.Querier, error) {
	start, end := parseTimeRange(r)
	queryable := &StoreQueryable{Store: h.store, Project: project}
	return queryable.Querier(start.UnixMilli(), end.UnixMilli())
}

// matcherSets collects the selectors of a request: every match[] parameter
// in PromQL syntax and every filter parameter in filter syntax.
func matcherSets(r *http.Request) ([][]*labels.Matcher, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	var sets [][]*labels.Matcher
	for _, ms := range r.Form["match[]"] {
		matchers, err := parser.ParseMetricSelector(ms)
		if err != nil {
			return nil, fmt.Errorf("invalid match[]: %v", err)
		}
		sets = append(sets, matchers)
	}
	for _, text := range r.Form["filter"] {
		f, err := filter.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %v", err)
		}
		matchers, err := Matchers(f)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		sets = append(sets, matchers)
	}
	return sets, nil
}

// --- Path parsing ---

// parsePromPath extracts project and endpoint from:
// /v1/projects/{project}/location/{location}/prometheus/api/v1/{endpoint...}
func parsePromPath(path string) (project, endpoint string, ok bool) {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 10)
	// v1/projects/{project}/location/{location}/prometheus/api/v1/{endpoint...}
	//  0    1        2         3         4          5       6   7     8+
	if len(parts) < 9 ||
		parts[0] != "v1" || parts[1] != "projects" ||
		parts[3] != "location" || parts[5] != "prometheus" ||
		parts[6] != "api" || parts[7] != "v1" {
		return "", "", false
	}
	return parts[2], strings.Join(parts[8:], "/"), true
}

// parseLabelValuesEndpoint checks if endpoint is "label/{name}/values".
func parseLabelValuesEndpoint(endpoint string) (string, bool) {
	name, found := strings.CutPrefix(endpoint, "label/")
	if !found {
		return "", false
	}
	name, found = strings.CutSuffix(name, "/values")
	if !found || name == "" {
		return "", false
	}
	return name, true
}

// --- Time/duration parsing ---

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Bare number → seconds.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func parseTimeRange(r *http.Request) (start, end time.Time) {
	start, err := parseTime(r.FormValue("start"))
	if err != nil {
		start = time.Now().Add(-time.Hour)
	}
	end, err = parseTime(r.FormValue("end"))
	if err != nil {
		end = time.Now()
	}
	return start, end
}

// --- Result formatting ---

func writeQueryResult(w http.ResponseWriter, res *promql.Result) {
	var resultType string
	var result interface{}

	switch v := res.Value.(type) {
	case promql.Vector:
		resultType = "vector"
		items := make([]vectorItem, len(v))
		for i, s := range v {
			items[i] = vectorItem{Metric: labelsToMap(s.Metric), Value: samplePair(s.T, s.F)}
		}
		result = items
	case promql.Matrix:
		resultType = "matrix"
		items := make([]matrixItem, len(v))
		for i, s := range v {
			values := make([][2]interface{}, len(s.Floats))
			for j, p := range s.Floats {
				values[j] = samplePair(p.T, p.F)
			}
			items[i] = matrixItem{Metric: labelsToMap(s.Metric), Values: values}
		}
		result = items
	case promql.Scalar:
		resultType = "scalar"
		result = samplePair(v.T, v.V)
	default:
		resultType = string(v.Type())
		result = v.String()
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status: "success",
		Data: queryData{
			ResultType: resultType,
			Result:     result,
		},
	})
}

func samplePair(tMillis int64, v float64) [2]interface{} {
	return [2]interface{}{
		float64(tMillis) / 1000.0,
		formatFloat(v),
	}
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func labelsToMap(lset labels.Labels) map[string]string {
	m := make(map[string]string, lset.Len())
	lset.Range(func(l labels.Label) {
		m[l.Name] = l.Value
	})
	return m
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, apiResponse{
		Status:    "error",
		ErrorType: errType,
		Error:     msg,
	})
}
