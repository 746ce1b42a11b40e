package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectService struct {
	db store.Store
}

func NewProjectService(db store.Store) *ProjectService {
	return &ProjectService{db: db}
}

// TeamMember is the public view of a user.
type TeamMember struct {
	ID       primitive.ObjectID `json:"_id"`
	Name     string             `json:"name"`
	Username string             `json:"username"`
	Role     models.UserRole    `json:"role"`
}

func memberOf(u models.User) TeamMember {
	return TeamMember{ID: u.ID, Name: u.Name, Username: u.Username, Role: u.Role}
}

func (s *ProjectService) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.Projects().Find(ctx, bson.M{}, &projects, store.SortBy("_id", true)); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// Resolve finds a project by ObjectID hex or by its 1-based position in
// creation order.
func (s *ProjectService) Resolve(ctx context.Context, ref string) (models.Project, error) {
	ref = strings.TrimSpace(ref)
	if primitive.IsValidObjectID(ref) {
		id, _ := primitive.ObjectIDFromHex(ref)
		var p models.Project
		err := s.db.Projects().FindOne(ctx, bson.M{"_id": id}, &p)
		if errors.Is(err, store.ErrNotFound) {
			return models.Project{}, ErrProjectNotFound
		}
		if err != nil {
			return models.Project{}, fmt.Errorf("find project %s: %w", ref, err)
		}
		return p, nil
	}

	n, err := strconv.Atoi(ref)
	if err != nil {
		return models.Project{}, validationError("invalid project reference %q", ref)
	}
	projects, err := s.List(ctx)
	if err != nil {
		return models.Project{}, err
	}
	if n < 1 || n > len(projects) {
		return models.Project{}, ErrProjectNotFound
	}
	return projects[n-1], nil
}

func (s *ProjectService) Team(ctx context.Context, ref string) ([]TeamMember, error) {
	p, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := s.db.Users().Find(ctx, bson.M{"_id": bson.M{"$in": orEmpty(p.Team)}}, &users); err != nil {
		return nil, fmt.Errorf("find project team: %w", err)
	}
	team := make([]TeamMember, 0, len(users))
	for _, u := range users {
		team = append(team, memberOf(u))
	}
	return team, nil
}

// Tags returns every tag used by the project's tasks, in first-seen order.
func (s *ProjectService) Tags(ctx context.Context, ref string) ([]string, error) {
	p, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := s.db.Tasks().Find(ctx, bson.M{"proj_id": p.ID}, &tasks, store.SortBy("_id", true)); err != nil {
		return nil, fmt.Errorf("find project tasks: %w", err)
	}
	tags := []string{}
	seen := map[string]bool{}
	for _, t := range tasks {
		for _, tag := range t.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}
