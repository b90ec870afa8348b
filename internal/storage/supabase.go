package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStorage uploads videos into a Supabase Storage bucket.
type SupabaseStorage struct {
	client  *storage_go.Client
	bucket  string
	baseURL string
}

func NewSupabaseStorage(supabaseURL, serviceKey, bucket string) (*SupabaseStorage, error) {
	baseURL := strings.TrimSuffix(supabaseURL, "/")

	client, err := supabase.NewClient(baseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseStorage{
		client:  client.Storage,
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

func (s *SupabaseStorage) Save(_ context.Context, name string, r io.Reader, _ int64, contentType string) (string, error) {
	storagePath := "videos/" + name

	upsert := false
	_, err := s.client.UploadFile(s.bucket, storagePath, r, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return publicURL(s.baseURL, s.bucket, storagePath), nil
}

func publicURL(baseURL, bucket, storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", baseURL, bucket, storagePath)
}
