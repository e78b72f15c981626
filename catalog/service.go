package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"souqmarket/ident"
	"souqmarket/sanitize"
)

var log = logging.Logger("catalog")

// ErrInvalidInput signals a submission that fails validation.
var ErrInvalidInput = errors.New("catalog: invalid input")

// ListLimit caps every product listing.
const ListLimit = 200

// filterAll is the sentinel value clients send to disable a filter.
const filterAll = "all"

// Service exposes catalog reads and product submission.
type Service struct {
	repo    Repository
	now     func() time.Time
	newID   func() string
	newSlug func() string
}

// NewService creates a catalog service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:    repo,
		now:     time.Now,
		newID:   func() string { return ident.New(ident.PrefixProduct) },
		newSlug: func() string { return ident.New(ident.PrefixSlug) },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListPublic returns approved, active products narrowed by the filter.
func (s *Service) ListPublic(ctx context.Context, f Filter) ([]Product, error) {
	f.Category = normalizeFilterValue(f.Category, maxCategoryLen)
	f.City = normalizeFilterValue(f.City, maxCityLen)
	f.Query = sanitize.Text(f.Query, maxTitleLen)
	return s.repo.ListPublic(ctx, f, ListLimit)
}

// GetPublicBySlug returns a single visible product.
func (s *Service) GetPublicBySlug(ctx context.Context, slug string) (Product, error) {
	slug = sanitize.Text(slug, maxSlugLen)
	if slug == "" {
		return Product{}, ErrNotFound
	}
	return s.repo.GetPublicBySlug(ctx, slug)
}

// GetPublicByFarmer returns the approved products shown on a seller's public page.
func (s *Service) GetPublicByFarmer(ctx context.Context, farmerID string) ([]Product, error) {
	if farmerID == "" {
		return []Product{}, nil
	}
	return s.repo.ListApprovedByFarmer(ctx, farmerID, ListLimit)
}

// CreatePending validates a farmer submission and stores it awaiting
// moderation. farmerCity is used when the submission names no city.
func (s *Service) CreatePending(ctx context.Context, farmerID, farmerCity string, sub Submission) (string, error) {
	if farmerID == "" {
		return "", fmt.Errorf("%w: missing owner", ErrInvalidInput)
	}
	p, err := sub.normalize(farmerCity)
	if err != nil {
		return "", err
	}

	p.ID = s.newID()
	p.Slug = s.newSlug()
	p.FarmerID = farmerID
	p.Status = StatusPending
	p.Source = SourceFarmer
	p.IsActive = true
	p.CreatedAt = s.now().UTC()

	if err := s.repo.Create(ctx, p); err != nil {
		return "", err
	}

	log.Infow("product submitted", "slug", p.Slug, "farmer_id", farmerID, "price_mad", p.PriceMAD)
	return p.Slug, nil
}

// ListOwnedByFarmer returns the farmer's own submissions in any status.
func (s *Service) ListOwnedByFarmer(ctx context.Context, farmerID string) ([]Product, error) {
	return s.repo.ListOwnedByFarmer(ctx, farmerID, ListLimit)
}

// ListPending returns submissions awaiting moderation.
func (s *Service) ListPending(ctx context.Context) ([]PendingProduct, error) {
	return s.repo.ListPending(ctx, ListLimit)
}

// ImportSeed inserts pre-approved catalog entries. Items whose slug already
// exists are skipped; invalid items abort the import.
func (s *Service) ImportSeed(ctx context.Context, items []SeedItem) (int, error) {
	inserted := 0
	now := s.now().UTC()
	for i, item := range items {
		slug := sanitize.Text(item.Slug, maxSlugLen)
		if slug == "" {
			return inserted, fmt.Errorf("%w: seed item %d has no slug", ErrInvalidInput, i)
		}
		p, err := item.Submission.normalize("")
		if err != nil {
			return inserted, fmt.Errorf("seed item %q: %w", slug, err)
		}

		p.ID = s.newID()
		p.Slug = slug
		p.Status = StatusApproved
		p.Source = SourceSeed
		p.IsActive = true
		// Keep file order as newest-first order in listings.
		p.CreatedAt = now.Add(-time.Duration(i) * time.Millisecond)

		ok, err := s.repo.CreateSeed(ctx, p)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	log.Infow("seed imported", "inserted", inserted, "skipped", len(items)-inserted)
	return inserted, nil
}

func normalizeFilterValue(v string, max int) string {
	v = sanitize.Text(v, max)
	if strings.EqualFold(v, filterAll) {
		return ""
	}
	return v
}
