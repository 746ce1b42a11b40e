package handlers

import (
	"context"
	"net/http"

	"github.com/RichardLi88/Waypoint/middleware"
	"github.com/RichardLi88/Waypoint/services"
	"github.com/gorilla/mux"
)

type Services struct {
	Auth     *services.AuthService
	Users    *services.UserService
	Projects *services.ProjectService
	Tasks    *services.TaskService
	Sprints  *services.SprintService
	Health   func(ctx context.Context) error
}

func NewRouter(svc Services, corsOrigin string) http.Handler {
	auth := NewAuthHandler(svc.Auth)
	users := NewUserHandler(svc.Users)
	projects := NewProjectHandler(svc.Projects)
	tasks := NewTaskHandler(svc.Tasks)
	sprints := NewSprintHandler(svc.Sprints)

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if svc.Health != nil {
			if err := svc.Health(req.Context()); err != nil {
				http.Error(w, "Store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/auth", auth.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/refresh", auth.Refresh).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/logout", auth.Logout).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTAuthMiddleware(svc.Auth))

	api.HandleFunc("/users", users.GetUserByID).Methods(http.MethodGet)
	api.HandleFunc("/users", users.CreateUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{username}", users.GetUserByUsername).Methods(http.MethodGet)
	api.HandleFunc("/users/{username}", users.DeleteUser).Methods(http.MethodDelete)
	api.HandleFunc("/users/{username}/password", users.ChangePassword).Methods(http.MethodPatch)
	api.HandleFunc("/users/{username}/worklogs", users.WorkLogs).Methods(http.MethodGet)

	api.HandleFunc("/projects", projects.ListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}", projects.GetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}/tags", projects.GetTags).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}/team", projects.GetTeam).Methods(http.MethodGet)

	api.HandleFunc("/projects/{proj}/tasks", tasks.ListTasks).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}/tasks", tasks.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/projects/{proj}/tasks/{task}", tasks.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}/tasks/{task}", tasks.PatchTask).Methods(http.MethodPatch)
	api.HandleFunc("/projects/{proj}/tasks/{task}", tasks.DeleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{proj}/tasks/{task}/comment", tasks.PostComment).Methods(http.MethodPost)
	api.HandleFunc("/projects/{proj}/tasks/{task}/worklog", tasks.PostWorkLog).Methods(http.MethodPost)

	api.HandleFunc("/projects/{proj}/sprints", sprints.ListSprints).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}/sprints", sprints.CreateSprint).Methods(http.MethodPost)
	api.HandleFunc("/projects/{proj}/sprints/{sprint}", sprints.GetSprint).Methods(http.MethodGet)
	api.HandleFunc("/projects/{proj}/sprints/{sprint}", sprints.PatchSprint).Methods(http.MethodPatch)
	api.HandleFunc("/projects/{proj}/sprints/{sprint}", sprints.DeleteSprint).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{proj}/sprints/{sprint}/tasks", tasks.SprintTasks).Methods(http.MethodGet)

	return middleware.EnableCORS(corsOrigin)(r)
}
