package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.tasks.CreateTask(ctx, f.dev, "1", TaskInput{
		Name: "Login page", Description: "form", Priority: "high", Weight: "3", Tags: []string{"ui", "ui", "auth"},
	})
	require.NoError(t, err)

	task := f.task(t, created.ID)
	assert.Equal(t, f.projectID, task.ProjectID)
	assert.Equal(t, models.StatusNotStarted, task.Status)
	assert.Equal(t, 3, task.Weight)
	assert.Equal(t, []string{"ui", "auth"}, task.Tags)
	require.Len(t, task.History, 1)
	assert.Equal(t, models.HistoryCreation, task.History[0].Type)
	assert.Equal(t, f.devID, task.History[0].UserRef)
}

func TestCreateTaskRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := TaskInput{Name: "n", Priority: "low", Weight: "1"}

	_, err := f.tasks.CreateTask(ctx, f.admin, "1", valid)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.tasks.CreateTask(ctx, f.dev, "2", valid)
	assert.ErrorIs(t, err, ErrProjectNotFound)

	for _, in := range []TaskInput{
		{Priority: "low", Weight: "1"},
		{Name: "n", Priority: "whenever", Weight: "1"},
		{Name: "n", Priority: "low", Weight: "heavy"},
		{Name: "n", Priority: "low"},
	} {
		_, err := f.tasks.CreateTask(ctx, f.dev, "1", in)
		assert.ErrorIs(t, err, ErrValidation)
	}

	_, err = f.tasks.CreateTask(ctx, f.dev, "1", TaskInput{Name: "n", Priority: "low", Weight: "1", Assignees: []string{primitive.NewObjectID().Hex()}})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.allTasks(t))
}

func TestPatchWeightRecordsOneUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insertTask(t, models.Task{Name: "t", Weight: 5})

	res, err := f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{Weight: "8"})
	require.NoError(t, err)
	assert.False(t, res.NoOp)

	task := f.task(t, id)
	assert.Equal(t, 8, task.Weight)
	require.Len(t, task.History, 1)
	entry := task.History[0]
	assert.Equal(t, models.HistoryUpdate, entry.Type)
	assert.Equal(t, f.devID, entry.UserRef)
	require.Len(t, entry.Changes, 1)
	assert.EqualValues(t, 5, entry.Changes["weight"].From)
	assert.EqualValues(t, 8, entry.Changes["weight"].To)
	assert.Equal(t, entry.CreatedAt, task.UpdatedAt)
}

func TestPatchWithoutChangesIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insertTask(t, models.Task{Name: "t", Tags: []string{"b", "a"}, Weight: 2})
	before := f.task(t, id)

	res, err := f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{Name: "t", Tags: []string{"a", "b"}, Weight: "2"})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Empty(t, res.Changes)
	assert.Equal(t, before, f.task(t, id))
}

func TestPatchTaskRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insertTask(t, models.Task{Name: "t", Weight: 2})
	before := f.task(t, id)

	_, err := f.tasks.ApplyTaskPatch(ctx, f.admin, f.projectID.Hex(), id.Hex(), TaskPatchInput{Name: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{Weight: "two"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), primitive.NewObjectID().Hex(), TaskPatchInput{Name: "x"})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{Assignees: []string{primitive.NewObjectID().Hex()}})
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.Equal(t, before, f.task(t, id))
}

func TestPatchAssigneesAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insertTask(t, models.Task{Name: "t"})

	_, err := f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{
		Status:    "completed",
		Assignees: []string{f.devID.Hex(), f.adminID.Hex()},
	})
	require.NoError(t, err)

	view, err := f.tasks.GetTask(ctx, "1", id.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, view.Status)
	assert.Equal(t, ids(f.devID, f.adminID), view.Assignees)
	assert.True(t, view.Completed)

	_, err = f.tasks.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{Assignees: []string{}})
	require.NoError(t, err)
	task := f.task(t, id)
	assert.Empty(t, task.Assignees)
	assert.Len(t, task.History, 2)
}

func TestWorkLogAndComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insertTask(t, models.Task{Name: "t"})

	_, err := f.tasks.AppendWorkLog(ctx, f.dev, f.projectID.Hex(), id.Hex(), "3600000")
	require.NoError(t, err)
	_, err = f.tasks.AppendWorkLog(ctx, f.dev, f.projectID.Hex(), id.Hex(), "1800000")
	require.NoError(t, err)
	entry, err := f.tasks.AppendComment(ctx, f.dev, f.projectID.Hex(), id.Hex(), "  halfway  ")
	require.NoError(t, err)
	assert.Equal(t, "halfway", entry.Comment)

	view, err := f.tasks.GetTask(ctx, "1", id.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(90*time.Minute/time.Millisecond), view.TotalWorkTime)
	assert.False(t, view.Completed)
	require.Len(t, view.History, 3)

	_, err = f.tasks.AppendWorkLog(ctx, f.dev, f.projectID.Hex(), id.Hex(), "0")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.tasks.AppendWorkLog(ctx, f.dev, f.projectID.Hex(), id.Hex(), "86400001")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.tasks.AppendComment(ctx, f.dev, f.projectID.Hex(), id.Hex(), "   ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.tasks.AppendComment(ctx, f.admin, f.projectID.Hex(), id.Hex(), "hi")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.tasks.AppendComment(ctx, f.dev, f.projectID.Hex(), primitive.NewObjectID().Hex(), "hi")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.Len(t, f.task(t, id).History, 3)
}

func TestDeleteTaskPullsItFromSprints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	keep := f.insertTask(t, models.Task{Name: "keep"})
	gone := f.insertTask(t, models.Task{Name: "gone"})
	sprintID := f.insertSprint(t, models.Sprint{Name: "s", Tasks: ids(keep, gone)})

	require.NoError(t, f.tasks.DeleteTask(ctx, f.dev, f.projectID.Hex(), gone.Hex()))

	assert.Equal(t, ids(keep), f.sprint(t, sprintID).Tasks)
	assert.Len(t, f.allTasks(t), 1)
	assert.ErrorIs(t, f.tasks.DeleteTask(ctx, f.dev, f.projectID.Hex(), gone.Hex()), ErrTaskNotFound)
}

func TestListTasksAndSprintTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.insertProject(t, "Gemini")
	sprintID := primitive.NewObjectID()
	a := f.insertTask(t, models.Task{Name: "a", Sprint: &sprintID})
	f.insertTask(t, models.Task{Name: "b"})
	f.insertTask(t, models.Task{Name: "c", ProjectID: other})

	list, err := f.tasks.ListTasks(ctx, "1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	inSprint, err := f.tasks.SprintTasks(ctx, f.dev, f.projectID.Hex(), sprintID.Hex())
	require.NoError(t, err)
	require.Len(t, inSprint, 1)
	assert.Equal(t, a, inSprint[0].ID)

	_, err = f.tasks.SprintTasks(ctx, f.admin, f.projectID.Hex(), sprintID.Hex())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.tasks.GetTask(ctx, "2", a.Hex())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

// pausingTasks holds every FindOne until both racing patches have read.
type pausingTasks struct {
	store.Collection
	arrived chan struct{}
	release chan struct{}
}

func (c *pausingTasks) FindOne(ctx context.Context, filter bson.M, out interface{}) error {
	err := c.Collection.FindOne(ctx, filter, out)
	c.arrived <- struct{}{}
	<-c.release
	return err
}

type pausingStore struct {
	store.Store
	tasks store.Collection
}

func (s pausingStore) Tasks() store.Collection { return s.tasks }

func TestConcurrentPatchesBothRecordStaleFrom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insertTask(t, models.Task{Name: "original"})

	tasks := &pausingTasks{Collection: f.db.Tasks(), arrived: make(chan struct{}, 2), release: make(chan struct{})}
	db := pausingStore{Store: f.db, tasks: tasks}
	svc := NewTaskService(db, NewProjectService(db), fastCascade(db))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"first", "second"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = svc.ApplyTaskPatch(ctx, f.dev, f.projectID.Hex(), id.Hex(), TaskPatchInput{Name: name})
		}(i, name)
	}
	<-tasks.arrived
	<-tasks.arrived
	close(tasks.release)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	task := f.task(t, id)
	require.Len(t, task.History, 2)
	for _, e := range task.History {
		assert.Equal(t, models.HistoryUpdate, e.Type)
		assert.Equal(t, "original", e.Changes["name"].From)
	}
	// Last write wins, and the last entry describes it.
	assert.Equal(t, task.History[1].Changes["name"].To, task.Name)
	assert.NotEqual(t, task.History[0].Changes["name"].To, task.History[1].Changes["name"].To)
}

func TestTaskMutationsAreScopedToTheProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.insertProject(t, "Gemini").Hex()
	id := f.insertTask(t, models.Task{Name: "t", Weight: 5})

	_, err := f.tasks.ApplyTaskPatch(ctx, f.dev, other, id.Hex(), TaskPatchInput{Weight: "8"})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = f.tasks.AppendWorkLog(ctx, f.dev, other, id.Hex(), "60000")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = f.tasks.AppendComment(ctx, f.dev, other, id.Hex(), "hi")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, f.tasks.DeleteTask(ctx, f.dev, other, id.Hex()), ErrTaskNotFound)

	task := f.task(t, id)
	assert.Equal(t, 5, task.Weight)
	assert.Empty(t, task.History)
}
