package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"souqmarket/catalog"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	writes   int
}

func newFakeStore(products ...catalog.Product) *fakeStore {
	s := &fakeStore{products: make(map[string]catalog.Product)}
	for _, p := range products {
		s.products[p.Slug] = p
	}
	return s
}

func (s *fakeStore) GetBySlug(_ context.Context, slug string) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[slug]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, slug string, from, to catalog.Status, deactivate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[slug]
	if !ok || p.Source != catalog.SourceFarmer || p.Status != from {
		return catalog.ErrStaleStatus
	}
	p.Status = to
	if deactivate {
		p.IsActive = false
	}
	s.products[slug] = p
	s.writes++
	return nil
}

func farmerProduct(slug, owner string, status catalog.Status) catalog.Product {
	return catalog.Product{Slug: slug, FarmerID: owner, Status: status, Source: catalog.SourceFarmer, IsActive: true}
}

func seedProduct(slug string) catalog.Product {
	return catalog.Product{Slug: slug, Status: catalog.StatusApproved, Source: catalog.SourceSeed, IsActive: true}
}

func TestApprove(t *testing.T) {
	store := newFakeStore(farmerProduct("p1", "far_a", catalog.StatusPending))
	svc := NewService(store)

	if err := svc.Approve(context.Background(), "p1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	p := store.products["p1"]
	if p.Status != catalog.StatusApproved || !p.IsActive {
		t.Fatalf("expected approved and active, got %+v", p)
	}

	// Approving again is a no-op.
	if err := svc.Approve(context.Background(), "p1"); err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if store.writes != 1 {
		t.Fatalf("expected a single write, got %d", store.writes)
	}
}

func TestReject(t *testing.T) {
	store := newFakeStore(farmerProduct("p1", "far_a", catalog.StatusPending))
	svc := NewService(store)

	if err := svc.Reject(context.Background(), "p1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	p := store.products["p1"]
	if p.Status != catalog.StatusRejected || p.IsActive {
		t.Fatalf("expected rejected and inactive, got %+v", p)
	}

	if err := svc.Approve(context.Background(), "p1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve after reject: expected ErrInvalidTransition, got %v", err)
	}
	if err := svc.Reject(context.Background(), "p1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject twice: expected ErrInvalidTransition, got %v", err)
	}
	if p := store.products["p1"]; p.Status != catalog.StatusRejected || p.IsActive {
		t.Fatalf("rejected product changed: %+v", p)
	}
}

func TestRejectApprovedIsInvalid(t *testing.T) {
	store := newFakeStore(farmerProduct("p1", "far_a", catalog.StatusApproved))
	if err := NewService(store).Reject(context.Background(), "p1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestModerationIgnoresSeedAndMissing(t *testing.T) {
	store := newFakeStore(seedProduct("seed"))
	svc := NewService(store)
	ctx := context.Background()

	for _, slug := range []string{"seed", "missing", ""} {
		if err := svc.Approve(ctx, slug); !errors.Is(err, ErrNotFound) {
			t.Errorf("approve %q: expected ErrNotFound, got %v", slug, err)
		}
		if err := svc.Reject(ctx, slug); !errors.Is(err, ErrNotFound) {
			t.Errorf("reject %q: expected ErrNotFound, got %v", slug, err)
		}
	}
	if p := store.products["seed"]; p.Status != catalog.StatusApproved || !p.IsActive {
		t.Fatalf("seed product changed: %+v", p)
	}
}

func TestSelfDelete(t *testing.T) {
	store := newFakeStore(
		farmerProduct("pending", "far_a", catalog.StatusPending),
		farmerProduct("approved", "far_a", catalog.StatusApproved),
		farmerProduct("rejected", "far_a", catalog.StatusRejected),
		farmerProduct("other", "far_b", catalog.StatusApproved),
		seedProduct("seed"),
	)
	svc := NewService(store)
	ctx := context.Background()

	for _, slug := range []string{"pending", "approved"} {
		if err := svc.SelfDelete(ctx, slug, "far_a"); err != nil {
			t.Fatalf("delete %s: %v", slug, err)
		}
		p := store.products[slug]
		if p.Status != catalog.StatusDeleted || p.IsActive {
			t.Fatalf("expected deleted and inactive, got %+v", p)
		}
	}

	if err := svc.SelfDelete(ctx, "pending", "far_a"); err != nil {
		t.Fatalf("deleting twice should be a no-op, got %v", err)
	}
	if err := svc.SelfDelete(ctx, "rejected", "far_a"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("delete rejected: expected ErrInvalidTransition, got %v", err)
	}
	if err := svc.Approve(ctx, "approved"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve deleted: expected ErrInvalidTransition, got %v", err)
	}
}

func TestSelfDeleteForbidden(t *testing.T) {
	store := newFakeStore(farmerProduct("other", "far_b", catalog.StatusApproved), seedProduct("seed"))
	svc := NewService(store)
	ctx := context.Background()

	if err := svc.SelfDelete(ctx, "other", "far_a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if p := store.products["other"]; !p.IsActive || p.Status != catalog.StatusApproved {
		t.Fatalf("foreign product changed: %+v", p)
	}
	if err := svc.SelfDelete(ctx, "seed", "far_a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("seed: expected ErrForbidden, got %v", err)
	}
	if err := svc.SelfDelete(ctx, "other", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous: expected ErrForbidden, got %v", err)
	}
	if err := svc.SelfDelete(ctx, "missing", "far_a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: expected ErrNotFound, got %v", err)
	}
}

type racingStore struct {
	*fakeStore
	before func()
}

func (s *racingStore) UpdateStatus(ctx context.Context, slug string, from, to catalog.Status, deactivate bool) error {
	s.before()
	return s.fakeStore.UpdateStatus(ctx, slug, from, to, deactivate)
}

func TestConcurrentChangeSurfacesAsInvalidTransition(t *testing.T) {
	inner := newFakeStore(farmerProduct("p1", "far_a", catalog.StatusPending))
	store := &racingStore{fakeStore: inner, before: func() {
		inner.mu.Lock()
		p := inner.products["p1"]
		p.Status = catalog.StatusDeleted
		p.IsActive = false
		inner.products["p1"] = p
		inner.mu.Unlock()
	}}

	err := NewService(store).Approve(context.Background(), "p1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if p := inner.products["p1"]; p.Status != catalog.StatusDeleted {
		t.Fatalf("deleted product was overwritten: %+v", p)
	}
}
