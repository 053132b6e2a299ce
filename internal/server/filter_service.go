package server

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ata-marzban/filterd/internal/filter"
	"github.com/ata-marzban/filterd/internal/metrics"
	"github.com/ata-marzban/filterd/internal/store"
	"github.com/ata-marzban/filterd/internal/validation"
)

const defaultPageSize = 1000

const tracerName = "github.com/ata-marzban/filterd/internal/server"

// Options configures a FilterServiceServer. Zero values select defaults.
type Options struct {
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	MaxFilterLength int
	PageSize        int
}

// FilterServiceServer implements the gRPC FilterService.
type FilterServiceServer struct {
	store           store.Store
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
	maxFilterLength int
	pageSize        int
}

var _ FilterService = (*FilterServiceServer)(nil)

func NewFilterServiceServer(s store.Store, opts Options) *FilterServiceServer {
	srv := &FilterServiceServer{
		store:           s,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		tracer:          otel.Tracer(tracerName),
		maxFilterLength: opts.MaxFilterLength,
		pageSize:        opts.PageSize,
	}
	if srv.logger == nil {
		srv.logger = slog.New(slog.DiscardHandler)
	}
	if srv.maxFilterLength == 0 {
		srv.maxFilterLength = validation.DefaultMaxFilterLength
	}
	if srv.pageSize <= 0 {
		srv.pageSize = defaultPageSize
	}
	return srv
}

// Parse parses the "filter" field of the request and returns its
// predicates. An optional "resource" field scopes the result to that
// resource prefix.
func (s *FilterServiceServer) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := s.parse(ctx, stringField(req, "filter"), false)
	if err != nil {
		return nil, err
	}
	if r := stringField(req, "resource"); r != "" {
		f = f.Resource(r)
	}
	return encodeFilter(f)
}

func (s *FilterServiceServer) CreateResource(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	project, err := validation.ParseProjectFromName(stringField(req, "parent"))
	if err != nil {
		return nil, err
	}
	id := stringField(req, "resource_id")
	if err := validation.ValidateResourceID(id); err != nil {
		return nil, err
	}

	body := req.GetFields()["resource"].GetStructValue()
	if body == nil {
		return nil, status.Error(codes.InvalidArgument, "resource is required")
	}
	r, err := decodeResource(body)
	if err != nil {
		return nil, err
	}

	d, err := s.store.GetResourceDescriptor(ctx, r.GetType())
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, err
	}
	if err := validation.ValidateResource(r, d); err != nil {
		return nil, err
	}

	created, err := s.store.CreateResource(ctx, project, id, r)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "resource created", "name", created.Name, "type", r.GetType())
	return encodeResource(created)
}

func (s *FilterServiceServer) GetResource(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "name")
	if _, _, err := validation.ParseResourceName(name); err != nil {
		return nil, err
	}
	r, err := s.store.GetResource(ctx, name)
	if err != nil {
		return nil, err
	}
	return encodeResource(r)
}

func (s *FilterServiceServer) ListResources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	project, err := validation.ParseProjectFromName(stringField(req, "parent"))
	if err != nil {
		return nil, err
	}
	text := stringField(req, "filter")
	if _, err := s.parse(ctx, text, true); err != nil {
		return nil, err
	}

	all, err := s.store.ListResources(ctx, project, text)
	if err != nil {
		return nil, err
	}

	page, nextToken, err := paginate(len(all), s.requestPageSize(req), stringField(req, "page_token"))
	if err != nil {
		return nil, err
	}
	result := make([]interface{}, len(page))
	for i, idx := range page {
		st, err := encodeResource(all[idx])
		if err != nil {
			return nil, err
		}
		result[i] = st.AsMap()
	}

	return structpb.NewStruct(map[string]interface{}{
		"resources":       result,
		"next_page_token": nextToken,
	})
}

func (s *FilterServiceServer) DeleteResource(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	name := stringField(req, "name")
	if _, _, err := validation.ParseResourceName(name); err != nil {
		return nil, err
	}
	if err := s.store.DeleteResource(ctx, name); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func (s *FilterServiceServer) ListResourceDescriptors(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	text := stringField(req, "filter")
	if _, err := s.parse(ctx, text, true); err != nil {
		return nil, err
	}

	all, err := s.store.ListResourceDescriptors(ctx, text)
	if err != nil {
		return nil, err
	}

	page, nextToken, err := paginate(len(all), s.requestPageSize(req), stringField(req, "page_token"))
	if err != nil {
		return nil, err
	}
	result := make([]interface{}, len(page))
	for i, idx := range page {
		st, err := encodeDescriptor(all[idx])
		if err != nil {
			return nil, err
		}
		result[i] = st.AsMap()
	}

	return structpb.NewStruct(map[string]interface{}{
		"resource_descriptors": result,
		"next_page_token":      nextToken,
	})
}

// parse runs a filter through the parser inside a filter.parse span and
// records it in the metrics. With strict set, operators the matcher does
// not know are rejected as well.
func (s *FilterServiceServer) parse(ctx context.Context, text string, strict bool) (*filter.Filter, error) {
	_, span := s.tracer.Start(ctx, "filter.parse",
		trace.WithAttributes(attribute.String("filter.query", text)))
	defer span.End()

	if err := validation.CheckFilterLength(text, s.maxFilterLength); err != nil {
		span.SetStatus(otelcodes.Error, "filter too long")
		return nil, err
	}

	start := time.Now()
	f, err := filter.Parse(text)
	s.metrics.ObserveParse(time.Since(start), f, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "invalid filter")
		return nil, validation.FilterError(err)
	}
	if strict {
		if err := validation.CheckOperators(f); err != nil {
			span.SetStatus(otelcodes.Error, "unsupported operator")
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("filter.count", f.Len()))
	return f, nil
}

func (s *FilterServiceServer) requestPageSize(req *structpb.Struct) int {
	if n := int(numberField(req, "page_size")); n > 0 {
		return n
	}
	return s.pageSize
}

// --- Encoding ---

func stringField(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

// numberField accepts numbers and numeric strings, since query parameters
// reach the service as strings.
func numberField(st *structpb.Struct, key string) float64 {
	v := st.GetFields()[key]
	if s := v.GetStringValue(); s != "" {
		n, _ := strconv.ParseFloat(s, 64)
		return n
	}
	return v.GetNumberValue()
}

func encodeFilter(f *filter.Filter) (*structpb.Struct, error) {
	preds := make([]interface{}, 0, f.Len())
	for _, p := range f.Predicates() {
		field := p.AsField()
		resource, hasResource := field.Resource()

		values := make([]interface{}, 0, len(p.Value))
		typed := make([]interface{}, 0, len(p.Value))
		for _, v := range p.Value.Values() {
			values = append(values, v.Text)
			switch tv := v.AsValue().(type) {
			case filter.NumberValue:
				typed = append(typed, float64(tv))
			case filter.BoolValue:
				typed = append(typed, bool(tv))
			default:
				typed = append(typed, v.Text)
			}
		}
		separators := make([]interface{}, 0, len(p.Value)/2)
		for _, sep := range p.Value.Separators() {
			separators = append(separators, sep.Text)
		}

		pred := map[string]interface{}{
			"field":        p.Field.Text,
			"name":         field.Name(),
			"operator":     p.Operator.Text,
			"values":       values,
			"typed_values": typed,
			"separators":   separators,
			"list":         p.Value.IsList(),
		}
		if hasResource {
			pred["resource"] = resource
		}
		if sep := p.Value.Separator(); sep != 0 {
			pred["separator"] = string(sep)
		}
		preds = append(preds, pred)
	}

	return structpb.NewStruct(map[string]interface{}{
		"filter":     f.String(),
		"predicates": preds,
	})
}

func decodeResource(body *structpb.Struct) (*monitoredres.MonitoredResource, error) {
	raw, err := protojson.Marshal(body)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid resource: %v", err)
	}
	r := &monitoredres.MonitoredResource{}
	if err := protojson.Unmarshal(raw, r); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid resource: %v", err)
	}
	return r, nil
}

func encodeResource(r *store.Resource) (*structpb.Struct, error) {
	labels := make(map[string]interface{}, len(r.Resource.GetLabels()))
	for k, v := range r.Resource.GetLabels() {
		labels[k] = v
	}
	st, err := structpb.NewStruct(map[string]interface{}{
		"name":    r.Name,
		"project": r.Project,
		"id":      r.ID,
		"type":    r.Resource.GetType(),
		"labels":  labels,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode resource: %v", err)
	}
	return st, nil
}

func encodeDescriptor(d *monitoredres.MonitoredResourceDescriptor) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(d)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode descriptor: %v", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, status.Errorf(codes.Internal, "encode descriptor: %v", err)
	}
	return st, nil
}
