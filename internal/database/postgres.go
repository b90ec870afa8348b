package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"motion-transfer-backend/internal/models"
)

// Open connects to Postgres with the given driver ("postgres" for lib/pq, "pgx" for pgx)
// and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p              models.Project
		identityFrame  sql.NullString
		generatedVideo sql.NullString
		status         string
	)
	if err := row.Scan(&p.ID, &p.OriginalVideoURL, &identityFrame, &generatedVideo, &status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = models.ProjectStatus(status)
	if identityFrame.Valid {
		p.IdentityFrameURL = &identityFrame.String
	}
	if generatedVideo.Valid {
		p.GeneratedVideoURL = &generatedVideo.String
	}
	return &p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *PostgresStore) GetProject(ctx context.Context, id int) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, getProjectQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, originalVideoURL string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, createProjectQuery, originalVideoURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// UpdateProject locks the row, validates the transition and writes the merged record
// in one transaction, so two concurrent transitions out of the same status cannot both win.
func (s *PostgresStore) UpdateProject(ctx context.Context, id int, update models.ProjectUpdate) (*models.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanProject(tx.QueryRowContext(ctx, lockProjectQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	if err := update.Apply(current); err != nil {
		return nil, err
	}

	updated, err := scanProject(tx.QueryRowContext(ctx, updateProjectQuery,
		id, string(current.Status), nullString(current.IdentityFrameURL), nullString(current.GeneratedVideoURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project update: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) ListProjectsByStatus(ctx context.Context, status models.ProjectStatus) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, listProjectsByStatusQuery, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
