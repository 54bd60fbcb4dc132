package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/maxpoletaev/replicated/api/model"
	"github.com/maxpoletaev/replicated/router"
)

const errNoMember = "no member available"

type Resolver interface {
	ResolveRead(op router.Operation) (string, bool)
	ResolveWrite(op router.Operation) (string, bool)
}

type ResolveHandler struct {
	resolver Resolver
}

func NewResolveHandler(r Resolver) *ResolveHandler {
	return &ResolveHandler{
		resolver: r,
	}
}

func (api *ResolveHandler) Register(r chi.Router) {
	r.Get("/resolve/read", api.resolveRead)
	r.Get("/resolve/write", api.resolveWrite)
}

func (api *ResolveHandler) resolveRead(w http.ResponseWriter, r *http.Request) {
	op := router.Operation{Key: r.URL.Query().Get("key")}
	alias, ok := api.resolver.ResolveRead(op)
	respond(w, r, alias, ok)
}

func (api *ResolveHandler) resolveWrite(w http.ResponseWriter, r *http.Request) {
	op := router.Operation{Key: r.URL.Query().Get("key")}
	alias, ok := api.resolver.ResolveWrite(op)
	respond(w, r, alias, ok)
}

// respond uses 503 for an unavailable member so that callers can tell it
// apart from a resolved one without decoding the body.
func respond(w http.ResponseWriter, r *http.Request, alias string, ok bool) {
	if !ok {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, model.ResolveResponse{
			Available: false,
			Error:     errNoMember,
		})

		return
	}

	render.JSON(w, r, model.ResolveResponse{
		Alias:     alias,
		Available: true,
	})
}
