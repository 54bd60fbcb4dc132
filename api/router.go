package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxpoletaev/replicated/api/handler"
)

// CreateRouter mounts the status and resolution endpoints. The metrics handler
// is optional.
func CreateRouter(rt Router, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	handler.NewMembersHandler(rt).Register(r)
	handler.NewResolveHandler(rt).Register(r)

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
