package services

import (
	"context"
	"fmt"

	"github.com/RichardLi88/Waypoint/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PullFromSprintTeams removes a user from the team of every sprint.
type PullFromSprintTeams struct{ UserID primitive.ObjectID }

func (s PullFromSprintTeams) Name() string { return "pull user from sprint teams" }

func (s PullFromSprintTeams) Apply(ctx context.Context, db store.Store) error {
	_, err := db.Sprints().UpdateMany(ctx, bson.M{"team": s.UserID}, bson.M{"$pull": bson.M{"team": s.UserID}})
	return err
}

// UnsetSprintRole clears Field ("PO" or "scrumMaster") wherever it holds UserID.
type UnsetSprintRole struct {
	Field  string
	UserID primitive.ObjectID
}

func (s UnsetSprintRole) Name() string { return "unset sprint " + s.Field }

func (s UnsetSprintRole) Apply(ctx context.Context, db store.Store) error {
	_, err := db.Sprints().UpdateMany(ctx, bson.M{s.Field: s.UserID}, bson.M{"$unset": bson.M{s.Field: ""}})
	return err
}

type PullFromProjectTeams struct{ UserID primitive.ObjectID }

func (s PullFromProjectTeams) Name() string { return "pull user from project teams" }

func (s PullFromProjectTeams) Apply(ctx context.Context, db store.Store) error {
	_, err := db.Projects().UpdateMany(ctx, bson.M{"team": s.UserID}, bson.M{"$pull": bson.M{"team": s.UserID}})
	return err
}

type AddToProjectTeams struct{ UserID primitive.ObjectID }

func (s AddToProjectTeams) Name() string { return "add user to project teams" }

func (s AddToProjectTeams) Apply(ctx context.Context, db store.Store) error {
	_, err := db.Projects().UpdateMany(ctx, bson.M{}, bson.M{"$addToSet": bson.M{"team": s.UserID}})
	return err
}

// UnassignUsers removes the users from the assignees of every task.
type UnassignUsers struct{ UserIDs []primitive.ObjectID }

func (s UnassignUsers) Name() string { return "unassign users from tasks" }

func (s UnassignUsers) Apply(ctx context.Context, db store.Store) error {
	if len(s.UserIDs) == 0 {
		return nil
	}
	_, err := db.Tasks().UpdateMany(ctx,
		bson.M{"assignees": bson.M{"$in": s.UserIDs}},
		bson.M{"$pull": bson.M{"assignees": bson.M{"$in": s.UserIDs}}},
	)
	return err
}

type DeleteSessions struct{ Username string }

func (s DeleteSessions) Name() string { return "delete sessions" }

func (s DeleteSessions) Apply(ctx context.Context, db store.Store) error {
	_, err := db.Sessions().DeleteMany(ctx, bson.M{"username": s.Username})
	return err
}

type PurgeAuthoredHistory struct{ UserID primitive.ObjectID }

func (s PurgeAuthoredHistory) Name() string { return "purge authored history" }

func (s PurgeAuthoredHistory) Apply(ctx context.Context, db store.Store) error {
	_, err := NewLedger(db.Tasks()).PurgeByAuthor(ctx, s.UserID)
	return err
}

// DeleteDocument removes one document by id. A missing document is not an error.
type DeleteDocument struct {
	Collection string
	ID         primitive.ObjectID
}

func (s DeleteDocument) Name() string { return "delete " + s.Collection + " document" }

func (s DeleteDocument) Apply(ctx context.Context, db store.Store) error {
	coll := store.Named(db, s.Collection)
	if coll == nil {
		return fmt.Errorf("unknown collection %q", s.Collection)
	}
	_, err := coll.DeleteOne(ctx, bson.M{"_id": s.ID})
	return err
}

// SetSprintFields writes a prepared $set document to one sprint.
type SetSprintFields struct {
	SprintID primitive.ObjectID
	Set      bson.M
	Unset    []string
}

func (s SetSprintFields) Name() string { return "set sprint fields" }

func (s SetSprintFields) Apply(ctx context.Context, db store.Store) error {
	update := bson.M{}
	if len(s.Set) > 0 {
		update["$set"] = s.Set
	}
	if len(s.Unset) > 0 {
		unset := bson.M{}
		for _, f := range s.Unset {
			unset[f] = ""
		}
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}
	_, err := db.Sprints().UpdateOne(ctx, bson.M{"_id": s.SprintID}, update)
	return err
}

// DetachTasksFromOtherSprints keeps a task in at most one sprint's list.
type DetachTasksFromOtherSprints struct {
	SprintID primitive.ObjectID
	TaskIDs  []primitive.ObjectID
}

func (s DetachTasksFromOtherSprints) Name() string { return "detach tasks from other sprints" }

func (s DetachTasksFromOtherSprints) Apply(ctx context.Context, db store.Store) error {
	if len(s.TaskIDs) == 0 {
		return nil
	}
	_, err := db.Sprints().UpdateMany(ctx,
		bson.M{"_id": bson.M{"$ne": s.SprintID}, "tasks": bson.M{"$in": s.TaskIDs}},
		bson.M{"$pull": bson.M{"tasks": bson.M{"$in": s.TaskIDs}}},
	)
	return err
}

type LinkTasksToSprint struct {
	SprintID primitive.ObjectID
	TaskIDs  []primitive.ObjectID
}

func (s LinkTasksToSprint) Name() string { return "link tasks to sprint" }

func (s LinkTasksToSprint) Apply(ctx context.Context, db store.Store) error {
	if len(s.TaskIDs) == 0 {
		return nil
	}
	_, err := db.Tasks().UpdateMany(ctx, bson.M{"_id": bson.M{"$in": s.TaskIDs}}, bson.M{"$set": bson.M{"sprint": s.SprintID}})
	return err
}

// UnlinkTasksFromSprint clears the sprint reference of every task pointing at
// SprintID except those in Keep.
type UnlinkTasksFromSprint struct {
	SprintID primitive.ObjectID
	Keep     []primitive.ObjectID
}

func (s UnlinkTasksFromSprint) Name() string { return "unlink tasks from sprint" }

func (s UnlinkTasksFromSprint) Apply(ctx context.Context, db store.Store) error {
	keep := s.Keep
	if keep == nil {
		keep = []primitive.ObjectID{}
	}
	_, err := db.Tasks().UpdateMany(ctx,
		bson.M{"sprint": s.SprintID, "_id": bson.M{"$nin": keep}},
		bson.M{"$unset": bson.M{"sprint": ""}},
	)
	return err
}

type PullTaskFromSprints struct{ TaskID primitive.ObjectID }

func (s PullTaskFromSprints) Name() string { return "pull task from sprints" }

func (s PullTaskFromSprints) Apply(ctx context.Context, db store.Store) error {
	_, err := db.Sprints().UpdateMany(ctx, bson.M{"tasks": s.TaskID}, bson.M{"$pull": bson.M{"tasks": s.TaskID}})
	return err
}
