package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func validSubmission() Submission {
	return Submission{
		TitleFR:       "Mouton Sardi",
		TitleAR:       "خروف صردي",
		Category:      "sheep",
		PriceMAD:      3500,
		Images:        []string{"https://img.example.com/1.jpg"},
		DescriptionFR: "Bien nourri",
		DescriptionAR: "مربى جيدا",
	}
}

func TestService_CreatePending(t *testing.T) {
	repo := newFakeRepository()
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo).WithClock(func() time.Time { return now })

	weight := 42.5
	sub := validSubmission()
	sub.WeightKg = &weight
	sub.Images = []string{
		"http://insecure.example.com/a.jpg",
		"  https://img.example.com/1.jpg  ",
		"not a url",
		"https://img.example.com/2.jpg",
		"https://img.example.com/3.jpg",
		"https://img.example.com/4.jpg",
		"https://img.example.com/5.jpg",
		"https://img.example.com/6.jpg",
		"https://img.example.com/7.jpg",
	}

	slug, err := svc.CreatePending(context.Background(), "far_1", "Fès", sub)
	if err != nil {
		t.Fatalf("create: unexpected error: %v", err)
	}
	if !strings.HasPrefix(slug, "p_") {
		t.Fatalf("unexpected slug %q", slug)
	}

	p := repo.bySlug[slug]
	if p.Status != StatusPending || p.Source != SourceFarmer || !p.IsActive {
		t.Fatalf("unexpected lifecycle fields: %+v", p)
	}
	if p.FarmerID != "far_1" || p.City != "Fès" {
		t.Fatalf("expected owner and default city, got %q / %q", p.FarmerID, p.City)
	}
	if !strings.HasPrefix(p.ID, "prd_") || p.ID == p.Slug {
		t.Fatalf("unexpected id %q", p.ID)
	}
	if len(p.Images) != MaxImages || p.Images[0] != "https://img.example.com/1.jpg" {
		t.Fatalf("unexpected images %v", p.Images)
	}
	if p.WeightKg == nil || *p.WeightKg != 42.5 || !p.Delivery || p.Certified {
		t.Fatalf("unexpected optional fields: %+v", p)
	}
	if !p.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v, got %v", now, p.CreatedAt)
	}
}

func TestService_CreatePendingValidation(t *testing.T) {
	svc := NewService(newFakeRepository())
	no := false

	cases := map[string]func(*Submission){
		"missing title_ar":  func(s *Submission) { s.TitleAR = " " },
		"missing category":  func(s *Submission) { s.Category = "" },
		"missing desc_fr":   func(s *Submission) { s.DescriptionFR = "" },
		"price too low":     func(s *Submission) { s.PriceMAD = 9 },
		"price too high":    func(s *Submission) { s.PriceMAD = 200001 },
		"fractional price":  func(s *Submission) { s.PriceMAD = 99.5 },
		"no https image":    func(s *Submission) { s.Images = []string{"http://x.example.com/a.jpg", "ftp://x/a"} },
		"no images":         func(s *Submission) { s.Images = nil },
		"host-less https":   func(s *Submission) { s.Images = []string{"https://"} },
		"delivery is valid": nil,
	}
	for name, mutate := range cases {
		sub := validSubmission()
		if mutate == nil {
			sub.Delivery = &no
			if _, err := svc.CreatePending(context.Background(), "far_1", "Fès", sub); err != nil {
				t.Errorf("%s: unexpected error %v", name, err)
			}
			continue
		}
		mutate(&sub)
		if _, err := svc.CreatePending(context.Background(), "far_1", "Fès", sub); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}

	sub := validSubmission()
	if _, err := svc.CreatePending(context.Background(), "far_1", "", sub); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("no city anywhere: expected ErrInvalidInput, got %v", err)
	}
}

func TestService_PriceBounds(t *testing.T) {
	svc := NewService(newFakeRepository())
	for _, price := range []float64{MinPriceMAD, MaxPriceMAD} {
		sub := validSubmission()
		sub.PriceMAD = price
		if _, err := svc.CreatePending(context.Background(), "far_1", "Fès", sub); err != nil {
			t.Errorf("price %v: unexpected error %v", price, err)
		}
	}
}

func TestService_ListPublicNormalizesFilter(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)

	if _, err := svc.ListPublic(context.Background(), Filter{Category: "all", City: " ALL ", Query: "  mouton "}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lastFilter.Category != "" || repo.lastFilter.City != "" || repo.lastFilter.Query != "mouton" {
		t.Fatalf("unexpected filter passed to repository: %+v", repo.lastFilter)
	}
	if repo.lastLimit != ListLimit {
		t.Fatalf("expected limit %d, got %d", ListLimit, repo.lastLimit)
	}
}

func TestService_PendingInvisibleUntilApproved(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	slug, err := svc.CreatePending(ctx, "far_1", "Fès", validSubmission())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.GetPublicBySlug(ctx, slug); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending product must not be public, got %v", err)
	}
	list, _ := svc.ListPublic(ctx, Filter{})
	if len(list) != 0 {
		t.Fatalf("expected empty public list, got %d", len(list))
	}
	owned, _ := svc.ListOwnedByFarmer(ctx, "far_1")
	if len(owned) != 1 || owned[0].Slug != slug {
		t.Fatalf("owner must see pending product, got %+v", owned)
	}

	if err := repo.UpdateStatus(ctx, slug, StatusPending, StatusApproved, false); err != nil {
		t.Fatalf("approve: %v", err)
	}
	p, err := svc.GetPublicBySlug(ctx, slug)
	if err != nil {
		t.Fatalf("expected public after approval, got %v", err)
	}
	if p.Slug != slug {
		t.Fatalf("slug changed: %q != %q", p.Slug, slug)
	}
	byFarmer, _ := svc.GetPublicByFarmer(ctx, "far_1")
	if len(byFarmer) != 1 {
		t.Fatalf("expected product on public farmer page, got %d", len(byFarmer))
	}
}

func TestService_ImportSeed(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo)
	ctx := context.Background()

	sub := validSubmission()
	sub.City = "Rabat"
	items := []SeedItem{{Slug: "sardi-rabat", Submission: sub}, {Slug: "sardi-rabat-2", Submission: sub}}

	n, err := svc.ImportSeed(ctx, items)
	if err != nil || n != 2 {
		t.Fatalf("first import: n=%d err=%v", n, err)
	}
	n, err = svc.ImportSeed(ctx, items)
	if err != nil || n != 0 {
		t.Fatalf("re-import must skip existing slugs: n=%d err=%v", n, err)
	}

	p := repo.bySlug["sardi-rabat"]
	if p.Source != SourceSeed || p.Status != StatusApproved || p.FarmerID != "" || !p.IsActive {
		t.Fatalf("unexpected seed row: %+v", p)
	}

	if _, err := svc.ImportSeed(ctx, []SeedItem{{Slug: "", Submission: sub}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing slug, got %v", err)
	}
	noCity := validSubmission()
	if _, err := svc.ImportSeed(ctx, []SeedItem{{Slug: "x", Submission: noCity}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing city, got %v", err)
	}
}

type fakeRepository struct {
	mu         sync.Mutex
	bySlug     map[string]Product
	lastFilter Filter
	lastLimit  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{bySlug: make(map[string]Product)}
}

func (f *fakeRepository) sorted(keep func(Product) bool, limit int) []Product {
	out := []Product{}
	for _, p := range f.bySlug {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRepository) ListPublic(_ context.Context, filter Filter, limit int) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter, f.lastLimit = filter, limit
	return f.sorted(func(p Product) bool {
		return p.Public() &&
			(filter.Category == "" || p.Category == filter.Category) &&
			(filter.City == "" || p.City == filter.City)
	}, limit), nil
}

func (f *fakeRepository) GetPublicBySlug(_ context.Context, slug string) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.bySlug[slug]
	if !ok || !p.Public() {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepository) ListApprovedByFarmer(_ context.Context, farmerID string, limit int) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(p Product) bool {
		return p.FarmerID == farmerID && p.Source == SourceFarmer && p.Public()
	}, limit), nil
}

func (f *fakeRepository) ListOwnedByFarmer(_ context.Context, farmerID string, limit int) ([]Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(p Product) bool {
		return p.FarmerID == farmerID && p.Source == SourceFarmer
	}, limit), nil
}

func (f *fakeRepository) ListPending(_ context.Context, limit int) ([]PendingProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []PendingProduct{}
	for _, p := range f.sorted(func(p Product) bool {
		return p.Source == SourceFarmer && p.Status == StatusPending && p.IsActive
	}, limit) {
		out = append(out, PendingProduct{Product: p})
	}
	return out, nil
}

func (f *fakeRepository) Create(_ context.Context, p Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.bySlug[p.Slug]; exists {
		return ErrDuplicateSlug
	}
	f.bySlug[p.Slug] = p
	return nil
}

func (f *fakeRepository) CreateSeed(_ context.Context, p Product) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.bySlug[p.Slug]; exists {
		return false, nil
	}
	f.bySlug[p.Slug] = p
	return true, nil
}

func (f *fakeRepository) GetBySlug(_ context.Context, slug string) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.bySlug[slug]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepository) UpdateStatus(_ context.Context, slug string, from, to Status, deactivate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.bySlug[slug]
	if !ok || p.Source != SourceFarmer || p.Status != from {
		return ErrStaleStatus
	}
	p.Status = to
	if deactivate {
		p.IsActive = false
	}
	f.bySlug[slug] = p
	return nil
}
