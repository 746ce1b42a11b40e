package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrDuplicate   = errors.New("duplicate key")
	ErrUnavailable = errors.New("document store unavailable")
)

const (
	UsersCollection    = "users"
	ProjectsCollection = "projects"
	SprintsCollection  = "sprints"
	TasksCollection    = "tasks"
	SessionsCollection = "sessions"
)

type UpdateResult struct {
	Matched  int64
	Modified int64
}

type findOptions struct {
	sortField string
	ascending bool
}

type FindOption func(*findOptions)

func SortBy(field string, ascending bool) FindOption {
	return func(o *findOptions) {
		o.sortField = field
		o.ascending = ascending
	}
}

func collectFindOptions(opts []FindOption) findOptions {
	var o findOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Collection is the subset of document store operations the services use.
// Every single call is atomic with respect to the documents it touches.
// Filters and updates use MongoDB query syntax.
type Collection interface {
	FindOne(ctx context.Context, filter bson.M, out interface{}) error
	Find(ctx context.Context, filter bson.M, out interface{}, opts ...FindOption) error
	InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error)
	UpdateOne(ctx context.Context, filter, update bson.M) (UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update bson.M) (UpdateResult, error)
	UpsertOne(ctx context.Context, filter, update bson.M) error
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
}

type Store interface {
	Users() Collection
	Projects() Collection
	Sprints() Collection
	Tasks() Collection
	Sessions() Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Named returns the collection of s with the given name, or nil.
func Named(s Store, name string) Collection {
	switch name {
	case UsersCollection:
		return s.Users()
	case ProjectsCollection:
		return s.Projects()
	case SprintsCollection:
		return s.Sprints()
	case TasksCollection:
		return s.Tasks()
	case SessionsCollection:
		return s.Sessions()
	}
	return nil
}
