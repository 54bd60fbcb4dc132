package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/maxpoletaev/replicated/api/model"
	"github.com/maxpoletaev/replicated/membership"
	"github.com/maxpoletaev/replicated/router"
)

type MembersSource interface {
	Members() []router.Member
	Registry() *membership.Registry
}

type MembersHandler struct {
	router MembersSource
}

func NewMembersHandler(r MembersSource) *MembersHandler {
	return &MembersHandler{
		router: r,
	}
}

func (api *MembersHandler) Register(r chi.Router) {
	r.Get("/members", api.getMembers)
	r.Get("/topology", api.getTopology)
}

func (api *MembersHandler) getMembers(w http.ResponseWriter, r *http.Request) {
	members := api.router.Members()
	respMembers := make([]model.Member, len(members))

	for i, member := range members {
		respMembers[i] = model.Member{
			Alias:  member.Alias,
			Status: member.Status.String(),
		}
	}

	render.JSON(w, r, model.GetMembersResponse{
		Members: respMembers,
	})
}

func (api *MembersHandler) getTopology(w http.ResponseWriter, r *http.Request) {
	state := api.router.Registry().State()

	resp := model.GetTopologyResponse{
		Master:          state.Master,
		MasterAvailable: state.HasMaster(),
		Slaves:          append([]string{}, state.Slaves...),
		Deactivated:     append([]string{}, state.Deactivated...),
		Version:         state.Version,
	}

	render.JSON(w, r, resp)
}
