package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type HistoryKind string

const (
	HistoryCreation HistoryKind = "creation"
	HistoryUpdate   HistoryKind = "update"
	HistoryWorkLog  HistoryKind = "work_log"
	HistoryComment  HistoryKind = "comment"
)

type Change struct {
	From interface{} `bson:"from" json:"from"`
	To   interface{} `bson:"to" json:"to"`
}

// Changes maps a task field name to its recorded transition.
type Changes map[string]Change

// TaskHistoryItem is immutable once appended to a task's history.
type TaskHistoryItem struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Type      HistoryKind        `bson:"type" json:"type"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UserRef   primitive.ObjectID `bson:"userRef" json:"userRef"`
	Comment   string             `bson:"comment,omitempty" json:"comment,omitempty"`
	WorkTime  int64              `bson:"workTime,omitempty" json:"workTime,omitempty"`
	Changes   Changes            `bson:"changes,omitempty" json:"changes,omitempty"`
}
