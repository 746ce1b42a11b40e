package handlers

import (
	"net/http"

	"github.com/RichardLi88/Waypoint/services"
	"github.com/gorilla/mux"
)

type ProjectHandler struct {
	service *services.ProjectService
}

func NewProjectHandler(service *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.service.Resolve(r.Context(), mux.Vars(r)["proj"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) GetTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.Tags(r.Context(), mux.Vars(r)["proj"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *ProjectHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.service.Team(r.Context(), mux.Vars(r)["proj"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}
