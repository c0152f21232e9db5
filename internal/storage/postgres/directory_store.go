package postgres

import (
	"context"
	"errors"
	"fmt"

	"notra/internal/workflow"
)

// DirectoryStore resolves repository ids to concrete records. Ids that no
// longer exist are omitted from the result, not reported as errors.
type DirectoryStore struct {
	pool Pool
}

// NewDirectoryStore builds a DirectoryStore backed by the provided pool.
func NewDirectoryStore(pool Pool) (*DirectoryStore, error) {
	if pool == nil {
		return nil, errors.New("directory store requires pool")
	}
	return &DirectoryStore{pool: pool}, nil
}

// ResolveRepositories implements workflow.RepositoryDirectory.
func (s *DirectoryStore) ResolveRepositories(ctx context.Context, ids []string) ([]workflow.Repository, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, owner, repo, integration_id FROM repositories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve repositories: %w", err)
	}
	defer rows.Close()

	var repos []workflow.Repository
	for rows.Next() {
		var r workflow.Repository
		if err := rows.Scan(&r.ID, &r.Owner, &r.Repo, &r.IntegrationID); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve repositories: %w", err)
	}
	return repos, nil
}
