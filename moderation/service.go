package moderation

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"souqmarket/catalog"
)

var log = logging.Logger("moderation")

var (
	// ErrNotFound signals an absent product or one exempt from moderation.
	ErrNotFound = errors.New("moderation: not found")
	// ErrForbidden signals a farmer acting on a product it does not own.
	ErrForbidden = errors.New("moderation: forbidden")
	// ErrInvalidTransition signals a move the state machine does not allow.
	ErrInvalidTransition = errors.New("moderation: invalid transition")
)

// Store is the slice of the catalog the workflow reads and writes.
type Store interface {
	GetBySlug(ctx context.Context, slug string) (catalog.Product, error)
	UpdateStatus(ctx context.Context, slug string, from, to catalog.Status, deactivate bool) error
}

// Service applies moderation transitions to farmer-submitted products. It is
// the only writer of status and is_active after a product is created.
type Service struct {
	store Store
}

// NewService creates a moderation service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Approve makes a pending product public. Approving an approved product is a no-op.
func (s *Service) Approve(ctx context.Context, slug string) error {
	p, err := s.load(ctx, slug)
	if err != nil {
		return err
	}
	if p.Source != catalog.SourceFarmer {
		return ErrNotFound
	}
	return s.apply(ctx, ActionApprove, p, "admin")
}

// Reject hides a pending product permanently.
func (s *Service) Reject(ctx context.Context, slug string) error {
	p, err := s.load(ctx, slug)
	if err != nil {
		return err
	}
	if p.Source != catalog.SourceFarmer {
		return ErrNotFound
	}
	return s.apply(ctx, ActionReject, p, "admin")
}

// SelfDelete lets the owning farmer withdraw a pending or approved product.
func (s *Service) SelfDelete(ctx context.Context, slug, farmerID string) error {
	p, err := s.load(ctx, slug)
	if err != nil {
		return err
	}
	if p.Source != catalog.SourceFarmer || farmerID == "" || p.FarmerID != farmerID {
		return ErrForbidden
	}
	return s.apply(ctx, ActionSelfDelete, p, farmerID)
}

func (s *Service) load(ctx context.Context, slug string) (catalog.Product, error) {
	if slug == "" {
		return catalog.Product{}, ErrNotFound
	}
	p, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Product{}, ErrNotFound
		}
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Service) apply(ctx context.Context, a Action, p catalog.Product, actor string) error {
	if isNoop(a, p.Status) {
		log.Debugw("moderation no-op", "action", a, "slug", p.Slug, "status", p.Status)
		return nil
	}
	t, ok := next(a, p.Status)
	if !ok {
		return fmt.Errorf("%w: cannot %s a %s product", ErrInvalidTransition, a, p.Status)
	}

	if err := s.store.UpdateStatus(ctx, p.Slug, p.Status, t.to, t.deactivate); err != nil {
		if errors.Is(err, catalog.ErrStaleStatus) {
			return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, p.Slug)
		}
		return err
	}

	log.Infow("product moderated", "action", a, "slug", p.Slug, "from", p.Status, "to", t.to, "actor", actor)
	return nil
}
