package postgres

import (
	"context"
	"errors"
	"fmt"

	"notra/internal/workflow"
)

// PostStore persists generated posts. Insert-only from this service; editing
// belongs to the dashboard.
type PostStore struct {
	pool Pool
}

// NewPostStore builds a PostStore backed by the provided pool.
func NewPostStore(pool Pool) (*PostStore, error) {
	if pool == nil {
		return nil, errors.New("post store requires pool")
	}
	return &PostStore{pool: pool}, nil
}

// InsertPost writes one generated post.
func (s *PostStore) InsertPost(ctx context.Context, post *workflow.Post) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO generated_posts (id, organization_id, title, markdown, content_type, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		post.ID, post.OrganizationID, post.Title, post.Markdown, post.ContentType, post.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}
