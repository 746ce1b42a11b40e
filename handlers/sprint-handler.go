package handlers

import (
	"net/http"

	"github.com/RichardLi88/Waypoint/services"
	"github.com/gorilla/mux"
)

type SprintHandler struct {
	service *services.SprintService
}

func NewSprintHandler(service *services.SprintService) *SprintHandler {
	return &SprintHandler{service: service}
}

func (h *SprintHandler) ListSprints(w http.ResponseWriter, r *http.Request) {
	sprints, err := h.service.ListSprints(r.Context(), mux.Vars(r)["proj"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sprints)
}

func (h *SprintHandler) GetSprint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sprint, err := h.service.GetSprint(r.Context(), vars["proj"], vars["sprint"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sprint)
}

func (h *SprintHandler) CreateSprint(w http.ResponseWriter, r *http.Request) {
	var in services.SprintInput
	if !decodeBody(w, r, &in) {
		return
	}
	sprint, err := h.service.CreateSprint(r.Context(), caller(r), mux.Vars(r)["proj"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sprint)
}

func (h *SprintHandler) PatchSprint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var in services.SprintInput
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.service.ApplySprintPatch(r.Context(), caller(r), vars["proj"], vars["sprint"], in); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SprintHandler) DeleteSprint(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeleteSprint(r.Context(), caller(r), vars["proj"], vars["sprint"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
