package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore persists uploaded videos and returns the URL they are served from.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

// ObjectName returns a collision-free name for an upload, keeping its lower-cased extension.
func ObjectName(filename string) string {
	return uuid.New().String() + strings.ToLower(filepath.Ext(filename))
}
