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
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

type SprintService struct {
	db       store.Store
	projects *ProjectService
	cascade  *Cascade
	now      func() time.Time
}

func NewSprintService(db store.Store, projects *ProjectService, cascade *Cascade) *SprintService {
	return &SprintService{db: db, projects: projects, cascade: cascade, now: time.Now}
}

// SprintInput is used both to create a sprint and to patch one. On a patch,
// omitted fields are left alone and an empty tasks list unlinks every task.
type SprintInput struct {
	Name        string   `json:"name"`
	Team        []string `json:"team"`
	PO          string   `json:"PO"`
	ScrumMaster string   `json:"scrumMaster"`
	Tasks       []string `json:"tasks"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
}

type sprintPatch struct {
	Name        string
	Team        []primitive.ObjectID
	PO          *primitive.ObjectID
	ScrumMaster *primitive.ObjectID
	Tasks       []primitive.ObjectID
	StartDate   *time.Time
	EndDate     *time.Time
}

func parseSprintInput(in SprintInput) (sprintPatch, error) {
	var (
		p   = sprintPatch{Name: strings.TrimSpace(in.Name)}
		err error
	)
	if p.Team, err = parseObjectIDs("team member", in.Team); err != nil {
		return sprintPatch{}, err
	}
	if p.PO, err = parseOptionalObjectID("PO", in.PO); err != nil {
		return sprintPatch{}, err
	}
	if p.ScrumMaster, err = parseOptionalObjectID("scrum master", in.ScrumMaster); err != nil {
		return sprintPatch{}, err
	}
	if p.Tasks, err = parseObjectIDs("task", in.Tasks); err != nil {
		return sprintPatch{}, err
	}
	if p.StartDate, err = parseOptionalDate("startDate", in.StartDate); err != nil {
		return sprintPatch{}, err
	}
	if p.EndDate, err = parseOptionalDate("endDate", in.EndDate); err != nil {
		return sprintPatch{}, err
	}
	return p, nil
}

// roster lists every user id the patch refers to.
func (p sprintPatch) roster() []primitive.ObjectID {
	return models.Sprint{Team: p.Team, PO: p.PO, ScrumMaster: p.ScrumMaster}.EffectiveTeam()
}

type sprintPlan struct {
	Set     bson.M
	Removed []primitive.ObjectID
	Tasks   []primitive.ObjectID
}

// planSprintPatch works out the sprint fields to write and the users that
// leave the effective team. PO and scrum master are always kept in team.
func planSprintPatch(current models.Sprint, p sprintPatch) sprintPlan {
	plan := sprintPlan{Set: bson.M{}, Tasks: p.Tasks}
	if p.Name != "" {
		plan.Set["name"] = p.Name
	}

	if p.Team != nil || p.PO != nil || p.ScrumMaster != nil {
		next := current
		if p.Team != nil {
			next.Team = p.Team
		}
		if p.PO != nil {
			next.PO = p.PO
			plan.Set["PO"] = *p.PO
		}
		if p.ScrumMaster != nil {
			next.ScrumMaster = p.ScrumMaster
			plan.Set["scrumMaster"] = *p.ScrumMaster
		}
		team := next.EffectiveTeam()
		plan.Set["team"] = team
		plan.Removed = difference(current.EffectiveTeam(), team)
	}

	if p.Tasks != nil {
		plan.Set["tasks"] = p.Tasks
	}
	if p.StartDate != nil {
		plan.Set["startDate"] = *p.StartDate
	}
	if p.EndDate != nil {
		plan.Set["endDate"] = *p.EndDate
	}
	return plan
}

func difference(from, minus []primitive.ObjectID) []primitive.ObjectID {
	drop := make(map[primitive.ObjectID]bool, len(minus))
	for _, id := range minus {
		drop[id] = true
	}
	var out []primitive.ObjectID
	for _, id := range from {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *SprintService) findSprint(ctx context.Context, filter bson.M) (models.Sprint, error) {
	var sp models.Sprint
	err := s.db.Sprints().FindOne(ctx, filter, &sp)
	if errors.Is(err, store.ErrNotFound) {
		return models.Sprint{}, ErrSprintNotFound
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("find sprint: %w", err)
	}
	return sp, nil
}

// findScoped looks the sprint up within the referenced project only.
func (s *SprintService) findScoped(ctx context.Context, projectRef, sprintID string) (models.Sprint, error) {
	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return models.Sprint{}, err
	}
	id, err := parseObjectID("sprint", sprintID)
	if err != nil {
		return models.Sprint{}, err
	}
	return s.findSprint(ctx, bson.M{"_id": id, "proj_id": project.ID})
}

// checkReferences makes sure every referenced user exists and every
// referenced task belongs to the project.
func (s *SprintService) checkReferences(ctx context.Context, projectID primitive.ObjectID, p sprintPatch) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ensureUsersExist(gctx, s.db, p.roster())
	})
	g.Go(func() error {
		if len(p.Tasks) == 0 {
			return nil
		}
		var tasks []models.Task
		filter := bson.M{"_id": bson.M{"$in": p.Tasks}, "proj_id": projectID}
		if err := s.db.Tasks().Find(gctx, filter, &tasks); err != nil {
			return fmt.Errorf("find tasks: %w", err)
		}
		if len(tasks) != len(p.Tasks) {
			return ErrTaskNotFound
		}
		return nil
	})
	return g.Wait()
}

func checkDates(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return validationError("endDate %s is before startDate %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return nil
}

func (s *SprintService) CreateSprint(ctx context.Context, caller Identity, projectRef string, in SprintInput) (models.Sprint, error) {
	if err := Authorize(caller, ActionWriteSprint); err != nil {
		return models.Sprint{}, err
	}
	p, err := parseSprintInput(in)
	if err != nil {
		return models.Sprint{}, err
	}
	if p.Name == "" {
		return models.Sprint{}, validationError("name is required")
	}
	if p.StartDate == nil {
		return models.Sprint{}, validationError("startDate is required")
	}
	if err := checkDates(*p.StartDate, p.EndDate); err != nil {
		return models.Sprint{}, err
	}

	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return models.Sprint{}, err
	}
	if err := s.checkReferences(ctx, project.ID, p); err != nil {
		return models.Sprint{}, err
	}

	now := s.now().UTC()
	sprint := models.Sprint{
		ProjectID:   project.ID,
		Name:        p.Name,
		PO:          p.PO,
		ScrumMaster: p.ScrumMaster,
		Tasks:       orEmpty(p.Tasks),
		StartDate:   *p.StartDate,
		EndDate:     p.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sprint.Team = p.roster()

	id, err := s.db.Sprints().InsertOne(ctx, sprint)
	if err != nil {
		return models.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	sprint.ID = id

	err = s.cascade.Run(ctx, "sprint-creation",
		DetachTasksFromOtherSprints{SprintID: id, TaskIDs: sprint.Tasks},
		LinkTasksToSprint{SprintID: id, TaskIDs: sprint.Tasks},
	)
	if err != nil {
		return models.Sprint{}, err
	}
	logging.Logger.Infof("Event ID: SPRINT_CREATED, Description: %s created sprint %s with %d tasks", caller.Username, id.Hex(), len(sprint.Tasks))
	return sprint, nil
}

// ApplySprintPatch updates the sprint and everything that depends on its
// roster and task list.
func (s *SprintService) ApplySprintPatch(ctx context.Context, caller Identity, projectRef, sprintID string, in SprintInput) error {
	if err := Authorize(caller, ActionWriteSprint); err != nil {
		return err
	}
	p, err := parseSprintInput(in)
	if err != nil {
		return err
	}

	current, err := s.findScoped(ctx, projectRef, sprintID)
	if err != nil {
		return err
	}
	id := current.ID
	start := current.StartDate
	if p.StartDate != nil {
		start = *p.StartDate
	}
	end := current.EndDate
	if p.EndDate != nil {
		end = p.EndDate
	}
	if err := checkDates(start, end); err != nil {
		return err
	}
	if err := s.checkReferences(ctx, current.ProjectID, p); err != nil {
		return err
	}

	plan := planSprintPatch(current, p)
	plan.Set["updatedAt"] = s.now().UTC()

	steps := []Step{SetSprintFields{SprintID: id, Set: plan.Set}}
	if plan.Tasks != nil {
		steps = append(steps,
			DetachTasksFromOtherSprints{SprintID: id, TaskIDs: plan.Tasks},
			LinkTasksToSprint{SprintID: id, TaskIDs: plan.Tasks},
			UnlinkTasksFromSprint{SprintID: id, Keep: plan.Tasks},
		)
	}
	if len(plan.Removed) > 0 {
		steps = append(steps, UnassignUsers{UserIDs: plan.Removed})
	}
	if err := s.cascade.Run(ctx, "sprint-patch", steps...); err != nil {
		return err
	}
	logging.Logger.Infof("Event ID: SPRINT_UPDATED, Description: %s patched sprint %s, %d users left the team", caller.Username, sprintID, len(plan.Removed))
	return nil
}

// DeleteSprint clears the sprint reference of its tasks before removing the
// sprint itself, so a failed deletion can be retried.
func (s *SprintService) DeleteSprint(ctx context.Context, caller Identity, projectRef, sprintID string) error {
	if err := Authorize(caller, ActionWriteSprint); err != nil {
		return err
	}
	sprint, err := s.findScoped(ctx, projectRef, sprintID)
	if err != nil {
		return err
	}
	id := sprint.ID
	err = s.cascade.Run(ctx, "sprint-deletion",
		UnlinkTasksFromSprint{SprintID: id},
		DeleteDocument{Collection: store.SprintsCollection, ID: id},
	)
	if err != nil {
		return err
	}
	logging.Logger.Infof("Event ID: SPRINT_DELETED, Description: %s deleted sprint %s", caller.Username, sprintID)
	return nil
}

func (s *SprintService) GetSprint(ctx context.Context, projectRef, sprintID string) (models.Sprint, error) {
	return s.findScoped(ctx, projectRef, sprintID)
}

func (s *SprintService) ListSprints(ctx context.Context, projectRef string) ([]models.Sprint, error) {
	project, err := s.projects.Resolve(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	var sprints []models.Sprint
	if err := s.db.Sprints().Find(ctx, bson.M{"proj_id": project.ID}, &sprints, store.SortBy("startDate", true)); err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	return sprints, nil
}
