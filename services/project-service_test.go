package services

import (
	"context"
	"testing"

	"github.com/RichardLi88/Waypoint/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second := f.insertProject(t, "Gemini")

	tests := []struct {
		ref     string
		want    string
		wantErr error
	}{
		{ref: "1", want: "Apollo"},
		{ref: "2", want: "Gemini"},
		{ref: second.Hex(), want: "Gemini"},
		{ref: "0", wantErr: ErrProjectNotFound},
		{ref: "3", wantErr: ErrProjectNotFound},
		{ref: "ffffffffffffffffffffffff", wantErr: ErrProjectNotFound},
		{ref: "apollo", wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			p, err := f.projects.Resolve(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestProjectTeamAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insertTask(t, models.Task{Name: "a", Tags: []string{"api", "db"}})
	f.insertTask(t, models.Task{Name: "b", Tags: []string{"ui", "api"}})

	tags, err := f.projects.Tags(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "db", "ui"}, tags)

	team, err := f.projects.Team(ctx, "1")
	require.NoError(t, err)
	require.Len(t, team, 2)
	names := []string{team[0].Username, team[1].Username}
	assert.ElementsMatch(t, []string{"root", "dev"}, names)

	projects, err := f.projects.List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}
