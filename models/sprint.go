package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sprint keeps PO and ScrumMaster inside Team, and every id in Tasks points
// at a task whose Sprint field is this sprint.
type Sprint struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	ProjectID   primitive.ObjectID   `bson:"proj_id" json:"proj_id"`
	Name        string               `bson:"name" json:"name"`
	Team        []primitive.ObjectID `bson:"team" json:"team"`
	PO          *primitive.ObjectID  `bson:"PO,omitempty" json:"PO,omitempty"`
	ScrumMaster *primitive.ObjectID  `bson:"scrumMaster,omitempty" json:"scrumMaster,omitempty"`
	Tasks       []primitive.ObjectID `bson:"tasks" json:"tasks"`
	StartDate   time.Time            `bson:"startDate" json:"startDate"`
	EndDate     *time.Time           `bson:"endDate,omitempty" json:"endDate,omitempty"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// EffectiveTeam is Team plus PO and ScrumMaster when they are set.
func (s Sprint) EffectiveTeam() []primitive.ObjectID {
	team := make([]primitive.ObjectID, 0, len(s.Team)+2)
	seen := make(map[primitive.ObjectID]bool, len(s.Team)+2)
	add := func(id primitive.ObjectID) {
		if !seen[id] {
			seen[id] = true
			team = append(team, id)
		}
	}
	for _, id := range s.Team {
		add(id)
	}
	if s.PO != nil {
		add(*s.PO)
	}
	if s.ScrumMaster != nil {
		add(*s.ScrumMaster)
	}
	return team
}
