package services

import (
	"context"
	"fmt"
	"time"

	"github.com/RichardLi88/Waypoint/models"
	"github.com/RichardLi88/Waypoint/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ledger owns writes to task histories. Entries are only ever appended,
// or removed wholesale for an author who is being deleted.
type Ledger struct {
	tasks store.Collection
	now   func() time.Time
}

func NewLedger(tasks store.Collection) *Ledger {
	return &Ledger{tasks: tasks, now: time.Now}
}

func newEntry(kind models.HistoryKind, author primitive.ObjectID, at time.Time) models.TaskHistoryItem {
	return models.TaskHistoryItem{
		ID:        primitive.NewObjectID(),
		Type:      kind,
		CreatedAt: at.UTC().Truncate(time.Millisecond),
		UserRef:   author,
	}
}

func (l *Ledger) CreationEntry(author primitive.ObjectID) models.TaskHistoryItem {
	return newEntry(models.HistoryCreation, author, l.now())
}

func (l *Ledger) UpdateEntry(author primitive.ObjectID, changes models.Changes) models.TaskHistoryItem {
	e := newEntry(models.HistoryUpdate, author, l.now())
	e.Changes = changes
	return e
}

func (l *Ledger) WorkLogEntry(author primitive.ObjectID, workTime time.Duration) models.TaskHistoryItem {
	e := newEntry(models.HistoryWorkLog, author, l.now())
	e.WorkTime = workTime.Milliseconds()
	return e
}

func (l *Ledger) CommentEntry(author primitive.ObjectID, text string) models.TaskHistoryItem {
	e := newEntry(models.HistoryComment, author, l.now())
	e.Comment = text
	return e
}

// Append adds entry to the end of the task's history in one atomic update.
func (l *Ledger) Append(ctx context.Context, taskID primitive.ObjectID, entry models.TaskHistoryItem) error {
	return l.append(ctx, taskID, entry, nil)
}

// append optionally sets task fields in the same update that records entry,
// so a field change is never visible without its history entry.
func (l *Ledger) append(ctx context.Context, taskID primitive.ObjectID, entry models.TaskHistoryItem, fields bson.M) error {
	set := bson.M{"updatedAt": entry.CreatedAt}
	for k, v := range fields {
		set[k] = v
	}
	res, err := l.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{
		"$set":  set,
		"$push": bson.M{"history": entry},
	})
	if err != nil {
		return fmt.Errorf("append %s entry to task %s: %w", entry.Type, taskID.Hex(), err)
	}
	if res.Matched == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// PurgeByAuthor removes every entry authored by userID from every task,
// keeping the order of the rest. Running it twice is harmless.
func (l *Ledger) PurgeByAuthor(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := l.tasks.UpdateMany(ctx,
		bson.M{"history.userRef": userID},
		bson.M{"$pull": bson.M{"history": bson.M{"userRef": userID}}},
	)
	if err != nil {
		return 0, fmt.Errorf("purge history of %s: %w", userID.Hex(), err)
	}
	return res.Modified, nil
}

// TotalWorkTime sums the work log entries of a history.
func TotalWorkTime(history []models.TaskHistoryItem) time.Duration {
	var total int64
	for _, e := range history {
		if e.Type == models.HistoryWorkLog {
			total += e.WorkTime
		}
	}
	return time.Duration(total) * time.Millisecond
}

// HasReachedStatus reports whether any update in history moved the task to status.
func HasReachedStatus(history []models.TaskHistoryItem, status models.TaskStatus) bool {
	for _, e := range history {
		if e.Type != models.HistoryUpdate {
			continue
		}
		if c, ok := e.Changes["status"]; ok && fmt.Sprint(c.To) == string(status) {
			return true
		}
	}
	return false
}
