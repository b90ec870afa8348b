package models

import (
	"errors"
	"time"
)

type ProjectStatus string

const (
	StatusPending    ProjectStatus = "pending"
	StatusProcessing ProjectStatus = "processing"
	StatusCompleted  ProjectStatus = "completed"
	StatusFailed     ProjectStatus = "failed"
)

var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrInvalidTransition = errors.New("invalid project status transition")
)

// IsValid reports whether s is one of the known statuses.
func (s ProjectStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s ProjectStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo enforces the forward-only lifecycle:
// pending -> processing -> completed | failed.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Project is the record tracking one upload-through-generation workflow.
type Project struct {
	ID                int           `json:"id"`
	OriginalVideoURL  string        `json:"originalVideoUrl"`
	IdentityFrameURL  *string       `json:"identityFrameUrl"`
	GeneratedVideoURL *string       `json:"generatedVideoUrl"`
	Status            ProjectStatus `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// ProjectUpdate carries the fields to merge into a project. Nil fields are left untouched.
type ProjectUpdate struct {
	Status            *ProjectStatus
	IdentityFrameURL  *string
	GeneratedVideoURL *string
}

// Apply merges u into p after validating the status transition. Setting the current
// status again counts as an invalid transition, so a store applying updates atomically
// lets exactly one of several concurrent identical transitions through.
func (u ProjectUpdate) Apply(p *Project) error {
	if u.Status != nil {
		if !p.Status.CanTransitionTo(*u.Status) {
			return ErrInvalidTransition
		}
		p.Status = *u.Status
	}
	if u.IdentityFrameURL != nil {
		p.IdentityFrameURL = u.IdentityFrameURL
	}
	if u.GeneratedVideoURL != nil {
		p.GeneratedVideoURL = u.GeneratedVideoURL
	}
	return nil
}

func StatusPtr(s ProjectStatus) *ProjectStatus {
	return &s
}

func StringPtr(s string) *string {
	return &s
}
