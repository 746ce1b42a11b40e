package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RichardLi88/Waypoint/logging"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// MongoStore is the MongoDB backed Store. All collection calls share one
// circuit breaker, so a dead server fails fast with ErrUnavailable.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	breaker *gobreaker.CircuitBreaker
}

func ConnectMongo(ctx context.Context, uri, dbName string, breakerTimeout time.Duration) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName), breaker: newBreaker("MongoStoreCB", breakerTimeout)}, nil
}

func newBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		// Only transient server failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Warnf("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

// transient reports whether err means the server could not be reached or
// did not answer in time.
func transient(err error) bool {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	var selection topology.ServerSelectionError
	return errors.As(err, &selection)
}

// guard runs fn through the breaker. Transient failures and an open breaker
// become ErrUnavailable, everything else is returned as is.
func guard(breaker *gobreaker.CircuitBreaker, label string, fn func() error) error {
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%s: %w", label, ErrUnavailable)
	case transient(err):
		return fmt.Errorf("%s: %w: %v", label, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", label, err)
}

// EnsureIndexes creates the unique indexes the services rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, name := range []string{UsersCollection, SessionsCollection} {
		model := mongo.IndexModel{
			Keys:    bson.M{"username": 1},
			Options: options.Index().SetUnique(true),
		}
		if _, err := s.db.Collection(name).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create %s username index: %w", name, err)
		}
		logging.Logger.Infof("Event ID: DB_INDEX_CREATED, Description: Unique username index ensured on %s", name)
	}
	return nil
}

func (s *MongoStore) collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name), breaker: s.breaker}
}

func (s *MongoStore) Users() Collection    { return s.collection(UsersCollection) }
func (s *MongoStore) Projects() Collection { return s.collection(ProjectsCollection) }
func (s *MongoStore) Sprints() Collection  { return s.collection(SprintsCollection) }
func (s *MongoStore) Tasks() Collection    { return s.collection(TasksCollection) }
func (s *MongoStore) Sessions() Collection { return s.collection(SessionsCollection) }

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll    *mongo.Collection
	breaker *gobreaker.CircuitBreaker
}

func (c *mongoCollection) exec(op string, fn func() error) error {
	return guard(c.breaker, op+" "+c.coll.Name(), fn)
}

func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M, out interface{}) error {
	return c.exec("find one", func() error {
		err := c.coll.FindOne(ctx, nonNil(filter)).Decode(out)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	})
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, out interface{}, opts ...FindOption) error {
	o := collectFindOptions(opts)
	findOpts := options.Find()
	if o.sortField != "" {
		dir := -1
		if o.ascending {
			dir = 1
		}
		findOpts.SetSort(bson.D{{Key: o.sortField, Value: dir}})
	}
	return c.exec("find", func() error {
		cursor, err := c.coll.Find(ctx, nonNil(filter), findOpts)
		if err != nil {
			return err
		}
		return cursor.All(ctx, out)
	})
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	var id primitive.ObjectID
	err := c.exec("insert", func() error {
		res, err := c.coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		oid, ok := res.InsertedID.(primitive.ObjectID)
		if !ok {
			return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
		}
		id = oid
		return nil
	})
	return id, err
}

func (c *mongoCollection) update(ctx context.Context, op string, filter, update bson.M, many bool) (UpdateResult, error) {
	var out UpdateResult
	err := c.exec(op, func() error {
		var (
			res *mongo.UpdateResult
			err error
		)
		if many {
			res, err = c.coll.UpdateMany(ctx, nonNil(filter), update)
		} else {
			res, err = c.coll.UpdateOne(ctx, nonNil(filter), update)
		}
		if err != nil {
			return err
		}
		out = UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
		return nil
	})
	return out, err
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update bson.M) (UpdateResult, error) {
	return c.update(ctx, "update one", filter, update, false)
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter, update bson.M) (UpdateResult, error) {
	return c.update(ctx, "update many", filter, update, true)
}

func (c *mongoCollection) UpsertOne(ctx context.Context, filter, update bson.M) error {
	return c.exec("upsert", func() error {
		_, err := c.coll.UpdateOne(ctx, nonNil(filter), update, options.Update().SetUpsert(true))
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	})
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	var n int64
	err := c.exec("delete one", func() error {
		res, err := c.coll.DeleteOne(ctx, nonNil(filter))
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	var n int64
	err := c.exec("delete many", func() error {
		res, err := c.coll.DeleteMany(ctx, nonNil(filter))
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}
