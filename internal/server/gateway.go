package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type route struct {
	method  string
	pattern string
	rpc     string
	// body names the request field that receives the decoded body; "*"
	// merges the body into the request.
	body   string
	params func(map[string]string) map[string]string
	call   func(context.Context, *structpb.Struct) (proto.Message, error)
}

func forward[Resp proto.Message](f func(context.Context, *structpb.Struct) (Resp, error)) func(context.Context, *structpb.Struct) (proto.Message, error) {
	return func(ctx context.Context, req *structpb.Struct) (proto.Message, error) {
		return f(ctx, req)
	}
}

func parentParam(p map[string]string) map[string]string {
	return map[string]string{"parent": "projects/" + p["project"]}
}

func nameParam(p map[string]string) map[string]string {
	return map[string]string{"name": "projects/" + p["project"] + "/resources/" + p["id"]}
}

// RegisterFilterServiceHandlerServer registers the REST routes of the
// filter service on mux. Calls go straight to srv without a loopback
// connection.
func RegisterFilterServiceHandlerServer(ctx context.Context, mux *runtime.ServeMux, srv FilterService) error {
	routes := []route{
		{method: http.MethodGet, pattern: "/v1/parse", rpc: "Parse", call: forward(srv.Parse)},
		{method: http.MethodPost, pattern: "/v1/parse", rpc: "Parse", body: "*", call: forward(srv.Parse)},
		{method: http.MethodGet, pattern: "/v1/projects/{project}/resources", rpc: "ListResources", params: parentParam, call: forward(srv.ListResources)},
		{method: http.MethodPost, pattern: "/v1/projects/{project}/resources", rpc: "CreateResource", body: "resource", params: parentParam, call: forward(srv.CreateResource)},
		{method: http.MethodGet, pattern: "/v1/projects/{project}/resources/{id}", rpc: "GetResource", params: nameParam, call: forward(srv.GetResource)},
		{method: http.MethodDelete, pattern: "/v1/projects/{project}/resources/{id}", rpc: "DeleteResource", params: nameParam, call: forward(srv.DeleteResource)},
		{method: http.MethodGet, pattern: "/v1/resourceDescriptors", rpc: "ListResourceDescriptors", call: forward(srv.ListResourceDescriptors)},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler(mux)); err != nil {
			return err
		}
	}
	return nil
}

func (rt route) handler(mux *runtime.ServeMux) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		inbound, outbound := runtime.MarshalerForRequest(mux, r)
		ctx, err := runtime.AnnotateIncomingContext(ctx, mux, r, fullMethod(rt.rpc), runtime.WithHTTPPathPattern(rt.pattern))
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}

		req, err := rt.request(inbound, r, pathParams)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}

		resp, err := rt.call(ctx, req)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, resp)
	}
}

// request builds the Struct request from query parameters, the body and
// the path, in increasing order of precedence.
func (rt route) request(m runtime.Marshaler, r *http.Request, pathParams map[string]string) (*structpb.Struct, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			req.Fields[k] = structpb.NewStringValue(vs[0])
		}
	}

	if rt.body != "" {
		body := &structpb.Struct{}
		err := m.NewDecoder(r.Body).Decode(body)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			return nil, status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
		case rt.body == "*":
			for k, v := range body.GetFields() {
				req.Fields[k] = v
			}
		default:
			req.Fields[rt.body] = structpb.NewStructValue(body)
		}
	}

	if rt.params != nil {
		for k, v := range rt.params(pathParams) {
			req.Fields[k] = structpb.NewStringValue(v)
		}
	}
	return req, nil
}
