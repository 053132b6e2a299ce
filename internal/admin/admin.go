package admin

import (
	"encoding/json"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ata-marzban/filterd/internal/store"
)

// NewHandler returns an HTTP handler for the admin API.
//
//	POST /admin/reset                      drop every resource
//	POST /admin/reset?project=p&filter=f   drop the matching resources of p
//	GET  /admin/state                      store summary
func NewHandler(s store.Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/reset", handleReset(s))
	mux.HandleFunc("GET /admin/state", handleState(s))
	return mux
}

func handleReset(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := r.URL.Query().Get("project")
		if project == "" {
			s.Reset()
			w.WriteHeader(http.StatusNoContent)
			return
		}

		n, err := s.DeleteResources(r.Context(), project, r.URL.Query().Get("filter"))
		if err != nil {
			code := http.StatusInternalServerError
			if status.Code(err) == codes.InvalidArgument {
				code = http.StatusBadRequest
			}
			writeJSON(w, code, map[string]interface{}{"error": status.Convert(err).Message()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
	}
}

func handleState(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.State())
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
