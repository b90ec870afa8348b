package database

import (
	"context"

	"motion-transfer-backend/internal/models"
)

// ProjectStore persists projects. Implementations return models.ErrProjectNotFound for
// unknown ids and models.ErrInvalidTransition when an update would move status backwards.
type ProjectStore interface {
	GetProject(ctx context.Context, id int) (*models.Project, error)
	CreateProject(ctx context.Context, originalVideoURL string) (*models.Project, error)
	UpdateProject(ctx context.Context, id int, update models.ProjectUpdate) (*models.Project, error)
	ListProjectsByStatus(ctx context.Context, status models.ProjectStatus) ([]models.Project, error)
}
