package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps every collection in process. It understands the same
// query and update operators the services send to MongoDB.
type MemoryStore struct {
	users    *MemoryCollection
	projects *MemoryCollection
	sprints  *MemoryCollection
	tasks    *MemoryCollection
	sessions *MemoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    NewMemoryCollection(UsersCollection, "username"),
		projects: NewMemoryCollection(ProjectsCollection),
		sprints:  NewMemoryCollection(SprintsCollection),
		tasks:    NewMemoryCollection(TasksCollection),
		sessions: NewMemoryCollection(SessionsCollection, "username"),
	}
}

func (s *MemoryStore) Users() Collection    { return s.users }
func (s *MemoryStore) Projects() Collection { return s.projects }
func (s *MemoryStore) Sprints() Collection  { return s.sprints }
func (s *MemoryStore) Tasks() Collection    { return s.tasks }
func (s *MemoryStore) Sessions() Collection { return s.sessions }

func (s *MemoryStore) Ping(ctx context.Context) error  { return ctx.Err() }
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

type MemoryCollection struct {
	mu     sync.Mutex
	name   string
	unique []string
	docs   []bson.M
}

// NewMemoryCollection returns an empty collection that rejects two documents
// sharing a value in any of the unique fields.
func NewMemoryCollection(name string, unique ...string) *MemoryCollection {
	return &MemoryCollection{name: name, unique: unique}
}

func (c *MemoryCollection) FindOne(ctx context.Context, filter bson.M, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := normalize(filter)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, doc := range c.docs {
		ok, err := matchDocument(doc, f)
		if err != nil {
			return fmt.Errorf("find one %s: %w", c.name, err)
		}
		if ok {
			return decode(doc, out)
		}
	}
	return ErrNotFound
}

func (c *MemoryCollection) Find(ctx context.Context, filter bson.M, out interface{}, opts ...FindOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := normalize(filter)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("find %s: out must be a pointer to a slice, got %T", c.name, out)
	}

	c.mu.Lock()
	var matched []bson.M
	for _, doc := range c.docs {
		ok, err := matchDocument(doc, f)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("find %s: %w", c.name, err)
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	c.mu.Unlock()

	o := collectFindOptions(opts)
	if o.sortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			cmp := compareValues(matched[i][o.sortField], matched[j][o.sortField])
			if o.ascending {
				return cmp < 0
			}
			return cmp > 0
		})
	}

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(matched))
	for _, doc := range matched {
		elem := reflect.New(elemType)
		if err := decode(doc, elem.Interface()); err != nil {
			return fmt.Errorf("find %s: %w", c.name, err)
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}

func (c *MemoryCollection) InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, err
	}
	d, err := toDocument(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert %s: %w", c.name, err)
	}
	id, ok := d["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		id = primitive.NewObjectID()
		d["_id"] = id
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.violatesUnique(d, -1) {
		return primitive.NilObjectID, ErrDuplicate
	}
	c.docs = append(c.docs, d)
	return id, nil
}

func (c *MemoryCollection) UpdateOne(ctx context.Context, filter, update bson.M) (UpdateResult, error) {
	return c.update(ctx, filter, update, false)
}

func (c *MemoryCollection) UpdateMany(ctx context.Context, filter, update bson.M) (UpdateResult, error) {
	return c.update(ctx, filter, update, true)
}

func (c *MemoryCollection) update(ctx context.Context, filter, update bson.M, many bool) (UpdateResult, error) {
	var res UpdateResult
	if err := ctx.Err(); err != nil {
		return res, err
	}
	f, err := normalize(filter)
	if err != nil {
		return res, err
	}
	u, err := normalize(update)
	if err != nil {
		return res, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Stage every change first so a failing document leaves the collection untouched.
	staged := make(map[int]bson.M)
	for i, doc := range c.docs {
		ok, err := matchDocument(doc, f)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
		}
		if !ok {
			continue
		}
		res.Matched++
		next, err := toDocument(doc)
		if err != nil {
			return UpdateResult{}, err
		}
		if err := applyUpdate(next, u); err != nil {
			return UpdateResult{}, fmt.Errorf("update %s: %w", c.name, err)
		}
		if !valuesEqual(doc, next) {
			if c.violatesUnique(next, i) {
				return UpdateResult{}, ErrDuplicate
			}
			staged[i] = next
			res.Modified++
		}
		if !many {
			break
		}
	}
	for i, doc := range staged {
		c.docs[i] = doc
	}
	return res, nil
}

func (c *MemoryCollection) UpsertOne(ctx context.Context, filter, update bson.M) error {
	res, err := c.UpdateOne(ctx, filter, update)
	if err != nil || res.Matched > 0 {
		return err
	}

	f, err := normalize(filter)
	if err != nil {
		return err
	}
	u, err := normalize(update)
	if err != nil {
		return err
	}
	doc := bson.M{}
	for k, v := range f {
		if d, ok := asDoc(v); ok && isOperatorDoc(d) {
			continue
		}
		if !strings.HasPrefix(k, "$") {
			doc[k] = v
		}
	}
	if err := applyUpdate(doc, u); err != nil {
		return fmt.Errorf("upsert %s: %w", c.name, err)
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent upsert may have inserted the same key meanwhile.
	for i, existing := range c.docs {
		ok, err := matchDocument(existing, f)
		if err != nil {
			return err
		}
		if ok {
			next, err := toDocument(existing)
			if err != nil {
				return err
			}
			if err := applyUpdate(next, u); err != nil {
				return err
			}
			c.docs[i] = next
			return nil
		}
	}
	if c.violatesUnique(doc, -1) {
		return ErrDuplicate
	}
	c.docs = append(c.docs, doc)
	return nil
}

func (c *MemoryCollection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	return c.delete(ctx, filter, false)
}

func (c *MemoryCollection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	return c.delete(ctx, filter, true)
}

func (c *MemoryCollection) delete(ctx context.Context, filter bson.M, many bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var deleted int64
	kept := c.docs[:0:0]
	for _, doc := range c.docs {
		ok, err := matchDocument(doc, f)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", c.name, err)
		}
		if ok && (many || deleted == 0) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return deleted, nil
}

// Len reports the number of stored documents.
func (c *MemoryCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

func (c *MemoryCollection) violatesUnique(doc bson.M, skip int) bool {
	for _, field := range c.unique {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		for i, other := range c.docs {
			if i != skip && valuesEqual(other[field], v) {
				return true
			}
		}
	}
	return false
}

func normalize(m bson.M) (bson.M, error) {
	if m == nil {
		return bson.M{}, nil
	}
	return toDocument(m)
}

// toDocument round-trips v through BSON so the result holds only the types
// the driver decodes into: bson.M, primitive.A, int32, int64 and so on.
func toDocument(v interface{}) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(doc bson.M, out interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}
