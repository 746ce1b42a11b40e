package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardLi88/Waypoint/logging"
	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/store"
	"go.mongodb.org/mongo-driver/bson"
)

type TaskService struct {
	db       store.Store
	projects *ProjectService
	ledger   *Ledger
	cascade  *Cascade
	now      func() time.Time
}

func NewTaskService(db store.Store, projects *ProjectService, cascade *Cascade) *TaskService {
	return &TaskService{
		db:       db,
		projects: projects,
		ledger:   NewLedger(db.Tasks()),
		cascade:  cascade,
		now:      time.Now,
	}
}

type TaskInput struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	Weight      NumericString `json:"weight"`
	Tags        []string      `json:"tags"`
	Assignees   []string      `json:"assignees"`
}

// TaskView is a task with the figures derived from its history.
type TaskView struct {
	models.Task
	TotalWorkTime int64 `json:"totalWorkTime"`
	Completed     bool  `json:"completed"`
}

func viewOf(t models.Task) TaskView {
	return TaskView{
		Task:          t,
		TotalWorkTime: TotalWorkTime(t.History).Milliseconds(),
		Completed:     HasReachedStatus(t.History, models.StatusCompleted),
	}
}

func viewsOf(tasks []models.Task) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewOf(t))
	}
	return views
}

type PatchResult struct {
	NoOp    bool           `json:"noOp"`
	Changes models.Changes `json:"changes"`
}

func (s *TaskService) findTask(ctx context.Context, filter bson.M) (models.Task, error) {
	var t models.Task
	err := s.db.Tasks().FindOne(ctx, filter, &t)
	if errors.Is(err, store.ErrNotFound) {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

// findScoped looks the task up within the referenced project only.
func (s *TaskService) findScoped(ctx context.Context, projectRef, taskID string) (models.Task, error) {
	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return models.Task{}, err
	}
	id, err := parseObjectID("task", taskID)
	if err != nil {
		return models.Task{}, err
	}
	return s.findTask(ctx, bson.M{"_id": id, "proj_id": project.ID})
}

func (s *TaskService) CreateTask(ctx context.Context, caller Identity, projectRef string, in TaskInput) (models.Task, error) {
	if err := Authorize(caller, ActionWriteTasks); err != nil {
		return models.Task{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Task{}, validationError("name is required")
	}
	priority := models.Priority(in.Priority)
	if !priority.Valid() {
		return models.Task{}, validationError("unknown priority %q", in.Priority)
	}
	weight, err := parsePositiveInt("weight", in.Weight)
	if err != nil {
		return models.Task{}, err
	}
	assignees, err := parseObjectIDs("assignee", in.Assignees)
	if err != nil {
		return models.Task{}, err
	}

	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return models.Task{}, err
	}
	author, err := authorOf(ctx, s.db, caller)
	if err != nil {
		return models.Task{}, err
	}
	if err := ensureUsersExist(ctx, s.db, assignees); err != nil {
		return models.Task{}, err
	}

	creation := s.ledger.CreationEntry(author)
	task := models.Task{
		ProjectID:   project.ID,
		Name:        name,
		Description: in.Description,
		CreatedAt:   creation.CreatedAt,
		UpdatedAt:   creation.CreatedAt,
		History:     []models.TaskHistoryItem{creation},
		Status:      models.StatusNotStarted,
		Priority:    priority,
		Tags:        orEmpty(cleanTags(in.Tags)),
		Weight:      weight,
		Assignees:   assignees,
	}
	id, err := s.db.Tasks().InsertOne(ctx, task)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	task.ID = id
	logging.Logger.Infof("Event ID: TASK_CREATED, Description: %s created task %s in project %s", caller.Username, id.Hex(), project.ID.Hex())
	return task, nil
}

// ApplyTaskPatch records the fields of in that differ from the stored task
// as one update entry and applies them in the same write. A patch that
// changes nothing writes nothing.
func (s *TaskService) ApplyTaskPatch(ctx context.Context, caller Identity, projectRef, taskID string, in TaskPatchInput) (PatchResult, error) {
	if err := Authorize(caller, ActionWriteTasks); err != nil {
		return PatchResult{}, err
	}
	patch, err := ParseTaskPatch(in)
	if err != nil {
		return PatchResult{}, err
	}
	current, err := s.findScoped(ctx, projectRef, taskID)
	if err != nil {
		return PatchResult{}, err
	}
	author, err := authorOf(ctx, s.db, caller)
	if err != nil {
		return PatchResult{}, err
	}
	if err := ensureUsersExist(ctx, s.db, patch.Assignees); err != nil {
		return PatchResult{}, err
	}

	changes := ComputeChanges(current, patch)
	if len(changes) == 0 {
		return PatchResult{NoOp: true, Changes: changes}, nil
	}

	entry := s.ledger.UpdateEntry(author, changes)
	if err := s.ledger.append(ctx, current.ID, entry, fieldUpdates(changes)); err != nil {
		return PatchResult{}, err
	}
	logging.Logger.Infof("Event ID: TASK_UPDATED, Description: %s changed %d fields of task %s", caller.Username, len(changes), taskID)
	return PatchResult{Changes: changes}, nil
}

// AppendWorkLog records workTime milliseconds spent on the task by the caller.
func (s *TaskService) AppendWorkLog(ctx context.Context, caller Identity, projectRef, taskID string, workTime NumericString) (models.TaskHistoryItem, error) {
	if err := Authorize(caller, ActionWriteTasks); err != nil {
		return models.TaskHistoryItem{}, err
	}
	ms, err := parsePositiveInt("workTime", workTime)
	if err != nil {
		return models.TaskHistoryItem{}, err
	}
	if err := validateWorkTime(int64(ms)); err != nil {
		return models.TaskHistoryItem{}, err
	}
	task, err := s.findScoped(ctx, projectRef, taskID)
	if err != nil {
		return models.TaskHistoryItem{}, err
	}
	author, err := authorOf(ctx, s.db, caller)
	if err != nil {
		return models.TaskHistoryItem{}, err
	}

	entry := s.ledger.WorkLogEntry(author, time.Duration(ms)*time.Millisecond)
	if err := s.ledger.Append(ctx, task.ID, entry); err != nil {
		return models.TaskHistoryItem{}, err
	}
	return entry, nil
}

func (s *TaskService) AppendComment(ctx context.Context, caller Identity, projectRef, taskID, comment string) (models.TaskHistoryItem, error) {
	if err := Authorize(caller, ActionWriteTasks); err != nil {
		return models.TaskHistoryItem{}, err
	}
	text, err := validateComment(comment)
	if err != nil {
		return models.TaskHistoryItem{}, err
	}
	task, err := s.findScoped(ctx, projectRef, taskID)
	if err != nil {
		return models.TaskHistoryItem{}, err
	}
	author, err := authorOf(ctx, s.db, caller)
	if err != nil {
		return models.TaskHistoryItem{}, err
	}

	entry := s.ledger.CommentEntry(author, text)
	if err := s.ledger.Append(ctx, task.ID, entry); err != nil {
		return models.TaskHistoryItem{}, err
	}
	return entry, nil
}

// DeleteTask removes the task and its id from every sprint.
func (s *TaskService) DeleteTask(ctx context.Context, caller Identity, projectRef, taskID string) error {
	if err := Authorize(caller, ActionWriteTasks); err != nil {
		return err
	}
	task, err := s.findScoped(ctx, projectRef, taskID)
	if err != nil {
		return err
	}
	err = s.cascade.Run(ctx, "task-deletion",
		PullTaskFromSprints{TaskID: task.ID},
		DeleteDocument{Collection: store.TasksCollection, ID: task.ID},
	)
	if err != nil {
		return err
	}
	logging.Logger.Infof("Event ID: TASK_DELETED, Description: %s deleted task %s", caller.Username, taskID)
	return nil
}

func (s *TaskService) GetTask(ctx context.Context, projectRef, taskID string) (TaskView, error) {
	t, err := s.findScoped(ctx, projectRef, taskID)
	if err != nil {
		return TaskView{}, err
	}
	return viewOf(t), nil
}

func (s *TaskService) ListTasks(ctx context.Context, projectRef string) ([]TaskView, error) {
	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := s.db.Tasks().Find(ctx, bson.M{"proj_id": project.ID}, &tasks, store.SortBy("_id", true)); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return viewsOf(tasks), nil
}

// SprintTasks lists the tasks whose sprint reference is sprintID.
func (s *TaskService) SprintTasks(ctx context.Context, caller Identity, projectRef, sprintID string) ([]TaskView, error) {
	if err := Authorize(caller, ActionReadSprint); err != nil {
		return nil, err
	}
	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	id, err := parseObjectID("sprint", sprintID)
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := s.db.Tasks().Find(ctx, bson.M{"sprint": id, "proj_id": project.ID}, &tasks, store.SortBy("_id", true)); err != nil {
		return nil, fmt.Errorf("list sprint tasks: %w", err)
	}
	return viewsOf(tasks), nil
}
