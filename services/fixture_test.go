package services

import (
	"context"
	"testing"
	"time"

	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/store"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fixture struct {
	db       *store.MemoryStore
	cascade  *Cascade
	projects *ProjectService
	users    *UserService
	tasks    *TaskService
	sprints  *SprintService

	admin     Identity
	dev       Identity
	adminID   primitive.ObjectID
	devID     primitive.ObjectID
	projectID primitive.ObjectID
}

func fastCascade(db store.Store) *Cascade {
	c := NewCascade(db, time.Second)
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
	}
	return c
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := store.NewMemoryStore()
	cascade := fastCascade(db)
	projects := NewProjectService(db)
	f := &fixture{
		db:       db,
		cascade:  cascade,
		projects: projects,
		users:    NewUserService(db, cascade),
		tasks:    NewTaskService(db, projects, cascade),
		sprints:  NewSprintService(db, projects, cascade),
		admin:    Identity{Username: "root", Role: models.RoleAdmin},
		dev:      Identity{Username: "dev", Role: models.RoleDeveloper},
	}
	f.adminID = f.insertUser(t, "root", models.RoleAdmin)
	f.devID = f.insertUser(t, "dev", models.RoleDeveloper)
	f.projectID = f.insertProject(t, "Apollo", f.adminID, f.devID)
	return f
}

func (f *fixture) insertUser(t *testing.T, username string, role models.UserRole) primitive.ObjectID {
	t.Helper()
	id, err := f.db.Users().InsertOne(context.Background(), models.User{
		Name:     username,
		Username: username,
		Password: "not-a-hash",
		Role:     role,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) insertProject(t *testing.T, name string, team ...primitive.ObjectID) primitive.ObjectID {
	t.Helper()
	id, err := f.db.Projects().InsertOne(context.Background(), models.Project{
		Name:   name,
		Team:   orEmpty(team),
		Status: models.ProjectActive,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) insertTask(t *testing.T, task models.Task) primitive.ObjectID {
	t.Helper()
	if task.ProjectID.IsZero() {
		task.ProjectID = f.projectID
	}
	if task.Status == "" {
		task.Status = models.StatusNotStarted
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Weight == 0 {
		task.Weight = 1
	}
	task.Tags = orEmpty(task.Tags)
	task.History = orEmpty(task.History)
	id, err := f.db.Tasks().InsertOne(context.Background(), task)
	require.NoError(t, err)
	return id
}

func (f *fixture) insertSprint(t *testing.T, sprint models.Sprint) primitive.ObjectID {
	t.Helper()
	if sprint.ProjectID.IsZero() {
		sprint.ProjectID = f.projectID
	}
	sprint.Team = orEmpty(sprint.Team)
	sprint.Tasks = orEmpty(sprint.Tasks)
	id, err := f.db.Sprints().InsertOne(context.Background(), sprint)
	require.NoError(t, err)
	return id
}

func (f *fixture) task(t *testing.T, id primitive.ObjectID) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, f.db.Tasks().FindOne(context.Background(), bson.M{"_id": id}, &task))
	return task
}

func (f *fixture) sprint(t *testing.T, id primitive.ObjectID) models.Sprint {
	t.Helper()
	var sprint models.Sprint
	require.NoError(t, f.db.Sprints().FindOne(context.Background(), bson.M{"_id": id}, &sprint))
	return sprint
}

func (f *fixture) project(t *testing.T, id primitive.ObjectID) models.Project {
	t.Helper()
	var p models.Project
	require.NoError(t, f.db.Projects().FindOne(context.Background(), bson.M{"_id": id}, &p))
	return p
}

func (f *fixture) allTasks(t *testing.T) []models.Task {
	t.Helper()
	var tasks []models.Task
	require.NoError(t, f.db.Tasks().Find(context.Background(), bson.M{}, &tasks))
	return tasks
}

func entryBy(kind models.HistoryKind, author primitive.ObjectID, comment string) models.TaskHistoryItem {
	return models.TaskHistoryItem{
		ID:        primitive.NewObjectID(),
		Type:      kind,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UserRef:   author,
		Comment:   comment,
	}
}

func ids(list ...primitive.ObjectID) []primitive.ObjectID { return list }
