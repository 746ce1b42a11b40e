package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Task struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	ProjectID   primitive.ObjectID   `bson:"proj_id" json:"proj_id"`
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description" json:"description"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`
	History     []TaskHistoryItem    `bson:"history" json:"history"`
	Status      TaskStatus           `bson:"status" json:"status"`
	Priority    Priority             `bson:"priority" json:"priority"`
	Tags        []string             `bson:"tags" json:"tags"`
	Weight      int                  `bson:"weight" json:"weight"`
	Assignees   []primitive.ObjectID `bson:"assignees,omitempty" json:"assignees,omitempty"`
	Sprint      *primitive.ObjectID  `bson:"sprint,omitempty" json:"sprint,omitempty"`
}
