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
	"github.com/RichardLi88/Waypoint/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserService struct {
	db        store.Store
	cascade   *Cascade
	blacklist map[string]bool
	now       func() time.Time
}

func NewUserService(db store.Store, cascade *Cascade) *UserService {
	return &UserService{db: db, cascade: cascade, now: time.Now}
}

// UsePasswordBlacklist rejects the listed passwords on user creation and
// password change.
func (s *UserService) UsePasswordBlacklist(list map[string]bool) {
	s.blacklist = list
}

func (s *UserService) checkPassword(password string) error {
	if password == "" {
		return validationError("password is required")
	}
	if s.blacklist[password] {
		return validationError("password is too common")
	}
	return nil
}

type UserInput struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// WorkLog is a work log entry together with the task it was logged on.
type WorkLog struct {
	TaskID   primitive.ObjectID `json:"taskId"`
	TaskName string             `json:"taskName"`
	models.TaskHistoryItem
}

func findUser(ctx context.Context, db store.Store, filter bson.M) (models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, filter, &u)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// authorOf resolves the caller to the user id recorded in history entries.
func authorOf(ctx context.Context, db store.Store, caller Identity) (primitive.ObjectID, error) {
	u, err := findUser(ctx, db, bson.M{"username": caller.Username})
	if err != nil {
		return primitive.NilObjectID, err
	}
	return u.ID, nil
}

// ensureUsersExist fails with ErrUserNotFound unless every id names a user.
func ensureUsersExist(ctx context.Context, db store.Store, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	var users []models.User
	if err := db.Users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, &users); err != nil {
		return fmt.Errorf("find users: %w", err)
	}
	if len(users) != len(ids) {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (TeamMember, error) {
	oid, err := parseObjectID("user", id)
	if err != nil {
		return TeamMember{}, err
	}
	u, err := findUser(ctx, s.db, bson.M{"_id": oid})
	if err != nil {
		return TeamMember{}, err
	}
	return memberOf(u), nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (TeamMember, error) {
	u, err := findUser(ctx, s.db, bson.M{"username": username})
	if err != nil {
		return TeamMember{}, err
	}
	return memberOf(u), nil
}

// CreateUser stores a new user and adds them to the team of every project.
func (s *UserService) CreateUser(ctx context.Context, caller Identity, in UserInput) (TeamMember, error) {
	if err := Authorize(caller, ActionManageUsers); err != nil {
		return TeamMember{}, err
	}
	return s.createUser(ctx, in)
}

func (s *UserService) createUser(ctx context.Context, in UserInput) (TeamMember, error) {
	username := strings.TrimSpace(in.Username)
	role := NormalizeRole(in.Role)
	switch {
	case username == "":
		return TeamMember{}, validationError("username is required")
	case role != models.RoleAdmin && role != models.RoleDeveloper:
		return TeamMember{}, validationError("unknown role %q", in.Role)
	}
	if err := s.checkPassword(in.Password); err != nil {
		return TeamMember{}, err
	}

	if _, err := findUser(ctx, s.db, bson.M{"username": username}); err == nil {
		return TeamMember{}, fmt.Errorf("%w: username %q is taken", ErrConflict, username)
	} else if !errors.Is(err, ErrUserNotFound) {
		return TeamMember{}, err
	}

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return TeamMember{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := models.User{
		Name:      strings.TrimSpace(in.Name),
		Username:  username,
		Password:  hashed,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.db.Users().InsertOne(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		return TeamMember{}, fmt.Errorf("%w: username %q is taken", ErrConflict, username)
	}
	if err != nil {
		return TeamMember{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id

	if err := s.cascade.Run(ctx, "user-creation", AddToProjectTeams{UserID: id}); err != nil {
		return TeamMember{}, err
	}
	logging.Logger.Infof("Event ID: USER_CREATED, Description: Created %s user %s", role, username)
	return memberOf(user), nil
}

// DeleteUser removes the user and every reference to them. The user
// document goes last, so a failed deletion can simply be retried.
func (s *UserService) DeleteUser(ctx context.Context, caller Identity, userID primitive.ObjectID) error {
	if err := Authorize(caller, ActionManageUsers); err != nil {
		return err
	}
	u, err := findUser(ctx, s.db, bson.M{"_id": userID})
	if err != nil {
		return err
	}
	return s.deleteUser(ctx, u)
}

func (s *UserService) DeleteUserByUsername(ctx context.Context, caller Identity, username string) error {
	if err := Authorize(caller, ActionManageUsers); err != nil {
		return err
	}
	u, err := findUser(ctx, s.db, bson.M{"username": username})
	if err != nil {
		return err
	}
	return s.deleteUser(ctx, u)
}

func (s *UserService) deleteUser(ctx context.Context, u models.User) error {
	err := s.cascade.Run(ctx, "user-deletion",
		PullFromSprintTeams{UserID: u.ID},
		UnsetSprintRole{Field: "PO", UserID: u.ID},
		UnsetSprintRole{Field: "scrumMaster", UserID: u.ID},
		PullFromProjectTeams{UserID: u.ID},
		UnassignUsers{UserIDs: []primitive.ObjectID{u.ID}},
		DeleteSessions{Username: u.Username},
		PurgeAuthoredHistory{UserID: u.ID},
		DeleteDocument{Collection: store.UsersCollection, ID: u.ID},
	)
	if err != nil {
		return err
	}
	logging.Logger.Infof("Event ID: USER_DELETED, Description: Deleted user %s", u.Username)
	return nil
}

func (s *UserService) ChangePassword(ctx context.Context, caller Identity, username, password string) error {
	if err := Authorize(caller, ActionManageUsers); err != nil {
		return err
	}
	if err := s.checkPassword(password); err != nil {
		return err
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := s.db.Users().UpdateOne(ctx, bson.M{"username": username}, bson.M{
		"$set": bson.M{"password": hashed, "updatedAt": s.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.Matched == 0 {
		return ErrUserNotFound
	}
	return nil
}

// WorkLogs lists the user's work log entries, optionally bounded by from and
// to. A date-only to covers the whole day.
func (s *UserService) WorkLogs(ctx context.Context, caller Identity, username, from, to string) ([]WorkLog, error) {
	if err := Authorize(caller, ActionManageUsers); err != nil {
		return nil, err
	}
	start, err := parseOptionalDate("startDate", from)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDate("endDate", to)
	if err != nil {
		return nil, err
	}
	if end != nil && len(strings.TrimSpace(to)) == len("2006-01-02") {
		t := end.Add(24*time.Hour - time.Nanosecond)
		end = &t
	}

	u, err := findUser(ctx, s.db, bson.M{"username": username})
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	if err := s.db.Tasks().Find(ctx, bson.M{"history.userRef": u.ID}, &tasks, store.SortBy("_id", true)); err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}

	logs := []WorkLog{}
	for _, t := range tasks {
		for _, e := range t.History {
			if e.Type != models.HistoryWorkLog || e.UserRef != u.ID {
				continue
			}
			if (start != nil && e.CreatedAt.Before(*start)) || (end != nil && e.CreatedAt.After(*end)) {
				continue
			}
			logs = append(logs, WorkLog{TaskID: t.ID, TaskName: t.Name, TaskHistoryItem: e})
		}
	}
	return logs, nil
}

// Bootstrap creates the first admin when no user with that name exists yet.
func (s *UserService) Bootstrap(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := s.createUser(ctx, UserInput{Name: username, Username: username, Password: password, Role: string(models.RoleAdmin)})
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}
