package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to ProjectStatus
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestProjectStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, ProjectStatus("queued").IsValid())
}

func TestProjectUpdate_ApplyLeavesNilFieldsAlone(t *testing.T) {
	p := Project{ID: 1, OriginalVideoURL: "/uploads/a.mp4", Status: StatusProcessing}

	require.NoError(t, ProjectUpdate{IdentityFrameURL: StringPtr("f.png")}.Apply(&p))
	assert.Equal(t, StatusProcessing, p.Status)
	assert.Equal(t, "f.png", *p.IdentityFrameURL)
	assert.Nil(t, p.GeneratedVideoURL)

	err := ProjectUpdate{Status: StatusPtr(StatusPending)}.Apply(&p)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusProcessing, p.Status)
}

func TestProject_WireShape(t *testing.T) {
	p := Project{
		ID:               1,
		OriginalVideoURL: "/uploads/a.mp4",
		Status:           StatusPending,
		CreatedAt:        time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": 1,
		"originalVideoUrl": "/uploads/a.mp4",
		"identityFrameUrl": null,
		"generatedVideoUrl": null,
		"status": "pending",
		"createdAt": "2024-01-02T03:04:05Z"
	}`, string(data))
}
