package handlers

import (
	"net/http"

	"github.com/RichardLi88/Waypoint/services"
	"github.com/gorilla/mux"
)

type TaskHandler struct {
	service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks(r.Context(), mux.Vars(r)["proj"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	task, err := h.service.GetTask(r.Context(), vars["proj"], vars["task"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in services.TaskInput
	if !decodeBody(w, r, &in) {
		return
	}
	task, err := h.service.CreateTask(r.Context(), caller(r), mux.Vars(r)["proj"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var in services.TaskPatchInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := h.service.ApplyTaskPatch(r.Context(), caller(r), vars["proj"], vars["task"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeleteTask(r.Context(), caller(r), vars["proj"], vars["task"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Comment string `json:"comment"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	entry, err := h.service.AppendComment(r.Context(), caller(r), vars["proj"], vars["task"], body.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *TaskHandler) PostWorkLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		WorkTime services.NumericString `json:"workTime"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	entry, err := h.service.AppendWorkLog(r.Context(), caller(r), vars["proj"], vars["task"], body.WorkTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *TaskHandler) SprintTasks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tasks, err := h.service.SprintTasks(r.Context(), caller(r), vars["proj"], vars["sprint"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}
