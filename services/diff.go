package services

import (
	"github.com/RichardLi88/Waypoint/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slices"
)

// TaskPatchInput is a task patch as received from a client.
type TaskPatchInput struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	Weight      NumericString `json:"weight"`
	Tags        []string      `json:"tags"`
	Assignees   []string      `json:"assignees"`
}

// TaskPatch is a validated patch. Empty strings and a nil Weight mean the
// field was not supplied. Tags and Assignees are absent when nil; an empty
// slice clears the set.
type TaskPatch struct {
	Name        string
	Description string
	Status      models.TaskStatus
	Priority    models.Priority
	Weight      *int
	Tags        []string
	Assignees   []primitive.ObjectID
}

func ParseTaskPatch(in TaskPatchInput) (TaskPatch, error) {
	p := TaskPatch{
		Name:        in.Name,
		Description: in.Description,
		Status:      models.TaskStatus(in.Status),
		Priority:    models.Priority(in.Priority),
		Tags:        cleanTags(in.Tags),
	}
	if p.Status != "" && !p.Status.Valid() {
		return TaskPatch{}, validationError("unknown status %q", in.Status)
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return TaskPatch{}, validationError("unknown priority %q", in.Priority)
	}
	if in.Weight != "" {
		w, err := parsePositiveInt("weight", in.Weight)
		if err != nil {
			return TaskPatch{}, err
		}
		p.Weight = &w
	}
	assignees, err := parseObjectIDs("assignee", in.Assignees)
	if err != nil {
		return TaskPatch{}, err
	}
	p.Assignees = assignees
	return p, nil
}

// ComputeChanges returns one entry per supplied field whose value differs
// from current. Tags and assignees are compared as sets. An empty result
// means the patch is a no-op.
func ComputeChanges(current models.Task, patch TaskPatch) models.Changes {
	changes := models.Changes{}

	if patch.Name != "" && patch.Name != current.Name {
		changes["name"] = models.Change{From: current.Name, To: patch.Name}
	}
	if patch.Description != "" && patch.Description != current.Description {
		changes["description"] = models.Change{From: current.Description, To: patch.Description}
	}
	if patch.Status != "" && patch.Status != current.Status {
		changes["status"] = models.Change{From: string(current.Status), To: string(patch.Status)}
	}
	if patch.Priority != "" && patch.Priority != current.Priority {
		changes["priority"] = models.Change{From: string(current.Priority), To: string(patch.Priority)}
	}
	if patch.Weight != nil && *patch.Weight != current.Weight {
		changes["weight"] = models.Change{From: current.Weight, To: *patch.Weight}
	}
	if patch.Tags != nil && !sameStringSet(current.Tags, patch.Tags) {
		changes["tags"] = models.Change{From: orEmpty(current.Tags), To: patch.Tags}
	}
	if patch.Assignees != nil && !sameIDSet(current.Assignees, patch.Assignees) {
		changes["assignees"] = models.Change{From: orEmpty(current.Assignees), To: patch.Assignees}
	}

	return changes
}

// fieldUpdates turns changes into the $set document that applies them.
func fieldUpdates(changes models.Changes) bson.M {
	set := bson.M{}
	for field, c := range changes {
		set[field] = c.To
	}
	return set
}

func canonical(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func sameStringSet(a, b []string) bool {
	return slices.Equal(canonical(a), canonical(b))
}

func sameIDSet(a, b []primitive.ObjectID) bool {
	return sameStringSet(hexes(a), hexes(b))
}

func hexes(ids []primitive.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

func orEmpty[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
