package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

func newTestGateway(t *testing.T) http.Handler {
	t.Helper()
	mux := runtime.NewServeMux()
	if err := RegisterFilterServiceHandlerServer(context.Background(), mux, newTestServer()); err != nil {
		t.Fatal(err)
	}
	return mux
}

func serve(t *testing.T, h http.Handler, method, target, body string) (int, map[string]interface{}) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, target, w.Body.String(), err)
	}
	return w.Code, out
}

func TestGatewayParse(t *testing.T) {
	h := newTestGateway(t)

	code, body := serve(t, h, http.MethodGet, "/v1/parse?filter="+url.QueryEscape("name:elmer,category=(a|b)"), "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if preds := body["predicates"].([]interface{}); len(preds) != 2 {
		t.Errorf("got %d predicates, want 2", len(preds))
	}

	code, body = serve(t, h, http.MethodPost, "/v1/parse", `{"filter": "a=1,b=2"}`)
	if code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %v", code, body)
	}
	if body["filter"] != "a=1,b=2" {
		t.Errorf("filter = %v", body["filter"])
	}
}

func TestGatewayParseError(t *testing.T) {
	h := newTestGateway(t)

	code, body := serve(t, h, http.MethodGet, "/v1/parse?filter="+url.QueryEscape("c=(a|b,c)"), "")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "invalid filter") {
		t.Errorf("message = %q", msg)
	}
	if details, _ := body["details"].([]interface{}); len(details) != 1 {
		t.Errorf("expected a BadRequest detail, got %v", body["details"])
	}
}

func TestGatewayResources(t *testing.T) {
	h := newTestGateway(t)

	code, body := serve(t, h, http.MethodPost, "/v1/projects/p/resources?resource_id=vm-1",
		`{"type": "gce_instance", "labels": {"zone": "us-east1-b"}}`)
	if code != http.StatusOK {
		t.Fatalf("create status = %d, body = %v", code, body)
	}
	if body["name"] != "projects/p/resources/vm-1" {
		t.Errorf("name = %v", body["name"])
	}

	code, body = serve(t, h, http.MethodGet, "/v1/projects/p/resources/vm-1", "")
	if code != http.StatusOK || body["type"] != "gce_instance" {
		t.Errorf("get status = %d, body = %v", code, body)
	}

	code, body = serve(t, h, http.MethodGet, "/v1/projects/p/resources?filter="+url.QueryEscape("labels.zone=us-east1-b"), "")
	if code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if list := body["resources"].([]interface{}); len(list) != 1 {
		t.Errorf("got %d resources, want 1", len(list))
	}

	code, _ = serve(t, h, http.MethodDelete, "/v1/projects/p/resources/vm-1", "")
	if code != http.StatusOK {
		t.Errorf("delete status = %d", code)
	}

	code, _ = serve(t, h, http.MethodGet, "/v1/projects/p/resources/vm-1", "")
	if code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", code)
	}
}

func TestGatewayCreateConflict(t *testing.T) {
	h := newTestGateway(t)
	serve(t, h, http.MethodPost, "/v1/projects/p/resources?resource_id=g", `{"type": "global"}`)
	code, _ := serve(t, h, http.MethodPost, "/v1/projects/p/resources?resource_id=g", `{"type": "global"}`)
	if code != http.StatusConflict {
		t.Errorf("status = %d, want 409", code)
	}
}

func TestGatewayResourceDescriptors(t *testing.T) {
	h := newTestGateway(t)

	code, body := serve(t, h, http.MethodGet, "/v1/resourceDescriptors?page_size=2", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if list := body["resource_descriptors"].([]interface{}); len(list) != 2 {
		t.Errorf("got %d descriptors, want 2", len(list))
	}
	if body["next_page_token"] == "" {
		t.Error("expected next page token")
	}
}
