package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"notra/internal/generation"
)

// BrandStore loads organization branding for generation prompts.
type BrandStore struct {
	pool Pool
}

// NewBrandStore builds a BrandStore backed by the provided pool.
func NewBrandStore(pool Pool) (*BrandStore, error) {
	if pool == nil {
		return nil, errors.New("brand store requires pool")
	}
	return &BrandStore{pool: pool}, nil
}

// GetBrandSettings implements workflow.BrandSource. Returns (nil, nil) when
// the organization has no branding row.
func (s *BrandStore) GetBrandSettings(ctx context.Context, organizationID string) (*generation.BrandSettings, error) {
	var b generation.BrandSettings
	err := s.pool.QueryRow(ctx, `
SELECT tone, company_name, company_description, audience, custom_instructions
FROM brand_settings WHERE organization_id = $1`, organizationID).
		Scan(&b.Tone, &b.CompanyName, &b.CompanyDescription, &b.Audience, &b.CustomInstructions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load brand settings: %w", err)
	}
	return &b, nil
}
