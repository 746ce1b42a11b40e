package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/services"
	"github.com/RichardLi88/Waypoint/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler   http.Handler
	db        *store.MemoryStore
	projectID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db := store.NewMemoryStore()
	projectID, err := db.Projects().InsertOne(ctx, models.Project{Name: "Apollo", Status: models.ProjectActive})
	require.NoError(t, err)

	cascade := services.NewCascade(db, time.Second)
	projects := services.NewProjectService(db)
	users := services.NewUserService(db, cascade)
	require.NoError(t, users.Bootstrap(ctx, "root", "rootpw"))

	handler := NewRouter(Services{
		Auth: services.NewAuthService(db, services.TokenSettings{
			AccessSecret:  "access",
			RefreshSecret: "refresh",
			AccessTTL:     time.Minute,
			RefreshTTL:    time.Hour,
		}),
		Users:    users,
		Projects: projects,
		Tasks:    services.NewTaskService(db, projects, cascade),
		Sprints:  services.NewSprintService(db, projects, cascade),
		Health:   db.Ping,
	}, "*")
	return &testServer{handler: handler, db: db, projectID: projectID.Hex()}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res["accessToken"].(string)
}

func (s *testServer) newDeveloper(t *testing.T, adminToken, username string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/users", adminToken, services.UserInput{
		Name: username, Username: username, Password: "devpw", Role: "developer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return s.login(t, username, "devpw")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/auth", "", map[string]string{"username": "root", "password": "rootpw"})
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "jwt", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: cookies[0].Value})
	refreshed := httptest.NewRecorder()
	s.handler.ServeHTTP(refreshed, req)
	assert.Equal(t, http.StatusOK, refreshed.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: cookies[0].Value})
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: cookies[0].Value})
	again := httptest.NewRecorder()
	s.handler.ServeHTTP(again, req)
	assert.Equal(t, http.StatusForbidden, again.Code)
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/auth", "", map[string]string{"username": "root", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth", bytes.NewBufferString("{"))
	bad := httptest.NewRecorder()
	s.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/projects", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "rootpw")
	dev := s.newDeveloper(t, admin, "dev")

	rec := s.do(t, http.MethodPost, "/api/projects/1/tasks", dev, map[string]interface{}{
		"name": "Landing", "priority": "high", "weight": "5", "tags": []string{"ui"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	assert.Equal(t, models.StatusNotStarted, task.Status)
	taskPath := "/api/projects/1/tasks/" + task.ID.Hex()

	rec = s.do(t, http.MethodPatch, taskPath, dev, map[string]interface{}{"weight": 8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res services.PatchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.False(t, res.NoOp)
	require.Contains(t, res.Changes, "weight")
	assert.EqualValues(t, 5, res.Changes["weight"].From)
	assert.EqualValues(t, 8, res.Changes["weight"].To)

	rec = s.do(t, http.MethodPatch, taskPath, dev, map[string]interface{}{"weight": 8})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.NoOp)

	rec = s.do(t, http.MethodPost, taskPath+"/worklog", dev, map[string]interface{}{"workTime": 3600000})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, taskPath+"/comment", dev, map[string]string{"comment": "looks good"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, taskPath, dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view services.TaskView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Len(t, view.History, 4)
	assert.EqualValues(t, 3600000, view.TotalWorkTime)

	rec = s.do(t, http.MethodGet, "/api/projects/"+s.projectID+"/tags", dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tags []string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tags))
	assert.Equal(t, []string{"ui"}, tags)

	rec = s.do(t, http.MethodDelete, taskPath, dev, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, taskPath, dev, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "rootpw")
	dev := s.newDeveloper(t, admin, "dev")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"admin cannot write tasks", http.MethodPost, "/api/projects/1/tasks", admin, map[string]interface{}{"name": "x", "priority": "low", "weight": 1}, http.StatusForbidden},
		{"developer cannot create users", http.MethodPost, "/api/users", dev, services.UserInput{Username: "x", Password: "x", Role: "developer"}, http.StatusForbidden},
		{"duplicate username", http.MethodPost, "/api/users", admin, services.UserInput{Username: "dev", Password: "x", Role: "developer"}, http.StatusConflict},
		{"bad weight", http.MethodPost, "/api/projects/1/tasks", dev, map[string]interface{}{"name": "x", "priority": "low", "weight": 0}, http.StatusBadRequest},
		{"unknown project", http.MethodGet, "/api/projects/9/tasks", dev, nil, http.StatusNotFound},
		{"bad task id", http.MethodPatch, "/api/projects/1/tasks/nope", dev, map[string]interface{}{"weight": 2}, http.StatusBadRequest},
		{"unknown user", http.MethodGet, "/api/users/ghost", dev, nil, http.StatusNotFound},
		{"missing id query", http.MethodGet, "/api/users", dev, nil, http.StatusBadRequest},
		{"worklogs are admin only", http.MethodGet, "/api/users/dev/worklogs", dev, nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSprintRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "rootpw")
	dev := s.newDeveloper(t, admin, "dev")

	rec := s.do(t, http.MethodPost, "/api/projects/1/tasks", dev, map[string]interface{}{"name": "a", "priority": "low", "weight": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))

	rec = s.do(t, http.MethodPost, "/api/projects/1/sprints", dev, map[string]interface{}{
		"name": "S1", "startDate": "2024-01-01", "endDate": "2024-01-14", "tasks": []string{task.ID.Hex()},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sprint models.Sprint
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sprint))
	sprintPath := "/api/projects/1/sprints/" + sprint.ID.Hex()

	rec = s.do(t, http.MethodGet, sprintPath+"/tasks", dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []services.TaskView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, task.ID, views[0].ID)

	rec = s.do(t, http.MethodGet, sprintPath+"/tasks", admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, sprintPath, dev, map[string]interface{}{"tasks": []string{}})
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, sprintPath, dev, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, sprintPath, dev, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskRoutesAreScopedToTheProject(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "root", "rootpw")
	dev := s.newDeveloper(t, admin, "dev")
	other, err := s.db.Projects().InsertOne(context.Background(), models.Project{Name: "Gemini", Status: models.ProjectActive})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/projects/1/tasks", dev, map[string]interface{}{"name": "a", "priority": "low", "weight": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))

	foreign := "/api/projects/" + other.Hex() + "/tasks/" + task.ID.Hex()
	rec = s.do(t, http.MethodPatch, foreign, dev, map[string]interface{}{"weight": 3})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, foreign, dev, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/projects/1/tasks/"+task.ID.Hex(), dev, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view services.TaskView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 1, view.Weight)
}
