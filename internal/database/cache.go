package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"motion-transfer-backend/internal/models"
)

const projectKeyPrefix = "project:"

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// CachedStore is a read-through Redis cache in front of another ProjectStore.
// Only projects in a terminal status are cached: their records never change again, so a
// read racing an update cannot put a stale in-flight record back into Redis.
// Cache errors are logged and fall through to the underlying store.
type CachedStore struct {
	next ProjectStore
	rdb  *redis.Client
	ttl  time.Duration
	log  logrus.FieldLogger
}

func NewCachedStore(next ProjectStore, rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) *CachedStore {
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, log: log}
}

func projectKey(id int) string {
	return fmt.Sprintf("%s%d", projectKeyPrefix, id)
}

func (s *CachedStore) GetProject(ctx context.Context, id int) (*models.Project, error) {
	data, err := s.rdb.Get(ctx, projectKey(id)).Bytes()
	switch {
	case err == nil:
		var p models.Project
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		s.log.WithField("project_id", id).Warn("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		s.log.WithError(err).WithField("project_id", id).Warn("project cache read failed")
	}

	p, err := s.next.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, p)
	return p, nil
}

func (s *CachedStore) CreateProject(ctx context.Context, originalVideoURL string) (*models.Project, error) {
	p, err := s.next.CreateProject(ctx, originalVideoURL)
	if err != nil {
		return nil, err
	}
	s.store(ctx, p)
	return p, nil
}

func (s *CachedStore) UpdateProject(ctx context.Context, id int, update models.ProjectUpdate) (*models.Project, error) {
	p, err := s.next.UpdateProject(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Del(ctx, projectKey(id)).Err(); err != nil {
		s.log.WithError(err).WithField("project_id", id).Warn("project cache invalidation failed")
	}
	return p, nil
}

func (s *CachedStore) ListProjectsByStatus(ctx context.Context, status models.ProjectStatus) ([]models.Project, error) {
	return s.next.ListProjectsByStatus(ctx, status)
}

func (s *CachedStore) store(ctx context.Context, p *models.Project) {
	if !p.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, projectKey(p.ID), data, s.ttl).Err(); err != nil {
		s.log.WithError(err).WithField("project_id", p.ID).Warn("project cache write failed")
	}
}
