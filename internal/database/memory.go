package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"motion-transfer-backend/internal/models"
)

// MemoryStore keeps projects in process memory. Used when no DATABASE_URL is configured
// and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int
	projects map[int]models.Project
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		projects: make(map[int]models.Project),
		now:      time.Now,
	}
}

func (s *MemoryStore) GetProject(_ context.Context, id int) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, models.ErrProjectNotFound
	}
	return clone(p), nil
}

func (s *MemoryStore) CreateProject(_ context.Context, originalVideoURL string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := models.Project{
		ID:               s.nextID,
		OriginalVideoURL: originalVideoURL,
		Status:           models.StatusPending,
		CreatedAt:        s.now().UTC(),
	}
	s.nextID++
	s.projects[p.ID] = p
	return clone(p), nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, id int, update models.ProjectUpdate) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, models.ErrProjectNotFound
	}
	if err := update.Apply(&p); err != nil {
		return nil, err
	}
	s.projects[id] = p
	return clone(p), nil
}

func (s *MemoryStore) ListProjectsByStatus(_ context.Context, status models.ProjectStatus) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Project
	for _, p := range s.projects {
		if p.Status == status {
			out = append(out, *clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(p models.Project) *models.Project {
	if p.IdentityFrameURL != nil {
		p.IdentityFrameURL = models.StringPtr(*p.IdentityFrameURL)
	}
	if p.GeneratedVideoURL != nil {
		p.GeneratedVideoURL = models.StringPtr(*p.GeneratedVideoURL)
	}
	return &p
}
