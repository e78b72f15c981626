package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"souqmarket/catalog"
	"souqmarket/farmer"
	"souqmarket/moderation"
	"souqmarket/order"
	"souqmarket/test/infra"
)

// Registry collects slugs and owners seen by the actors so buyers and rival
// sellers can target products in every moderation state.
type Registry struct {
	mu     sync.Mutex
	slugs  []string
	owners []string

	// Unexpected counts errors outside the domain sentinels, e.g. connections
	// cut by chaos.
	Unexpected atomic.Int64
}

func (r *Registry) add(slug, owner string) {
	r.mu.Lock()
	r.slugs = append(r.slugs, slug)
	r.owners = append(r.owners, owner)
	r.mu.Unlock()
}

// AddSeed registers pre-approved catalog slugs.
func (r *Registry) AddSeed(slugs ...string) {
	for _, s := range slugs {
		r.add(s, "")
	}
}

func (r *Registry) pick(rng *rand.Rand) (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.slugs) == 0 {
		return "", "", false
	}
	i := rng.Intn(len(r.slugs))
	return r.slugs[i], r.owners[i], true
}

func (r *Registry) tolerate(err error, expected ...error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	for _, e := range expected {
		if errors.Is(err, e) {
			return
		}
	}
	r.Unexpected.Add(1)
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// Seller registers a farmer, then keeps submitting products and deleting
// random ones, its own or a rival's.
func Seller(ctx context.Context, h *infra.Harness, reg *Registry, rng *rand.Rand, n int, stop <-chan struct{}) error {
	auth, err := h.Farmers.Register(ctx, farmer.RegisterRequest{
		Name:     fmt.Sprintf("Seller %d", n),
		Phone:    fmt.Sprintf("06%08d", n),
		City:     "Meknès",
		Password: "secret1",
	})
	if err != nil {
		return fmt.Errorf("seller %d register: %w", n, err)
	}
	me := auth.Farmer

	for i := 0; ; i++ {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		slug, err := h.Catalog.CreatePending(ctx, me.ID, me.City, catalog.Submission{
			TitleFR:       fmt.Sprintf("Mouton %d-%d", n, i),
			TitleAR:       "خروف",
			Category:      "sheep",
			PriceMAD:      float64(100 + rng.Intn(5000)),
			Images:        []string{"https://img.example.com/sheep.jpg"},
			DescriptionFR: "Élevé en plein air",
			DescriptionAR: "تربية حرة",
		})
		if err == nil {
			reg.add(slug, me.ID)
		}
		reg.tolerate(err)

		if rng.Intn(4) == 0 {
			if target, owner, ok := reg.pick(rng); ok {
				err := h.Moderation.SelfDelete(ctx, target, me.ID)
				if err == nil && owner != me.ID {
					return fmt.Errorf("seller %s deleted %s owned by %q", me.ID, target, owner)
				}
				reg.tolerate(err, moderation.ErrForbidden, moderation.ErrInvalidTransition, moderation.ErrNotFound)
			}
		}
		time.Sleep(time.Duration(20+rng.Intn(40)) * time.Millisecond)
	}
}

// Moderator drains the pending queue, approving or rejecting at random.
func Moderator(ctx context.Context, h *infra.Harness, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		pending, err := h.Catalog.ListPending(ctx)
		reg.tolerate(err)
		for _, p := range pending {
			if rng.Intn(3) == 0 {
				err = h.Moderation.Reject(ctx, p.Slug)
			} else {
				err = h.Moderation.Approve(ctx, p.Slug)
			}
			reg.tolerate(err, moderation.ErrInvalidTransition, moderation.ErrNotFound)
		}
		time.Sleep(time.Duration(30+rng.Intn(50)) * time.Millisecond)
	}
}

// Buyer places orders over random slugs in any state, with quantities that
// are sometimes out of range.
func Buyer(ctx context.Context, h *infra.Harness, reg *Registry, rng *rand.Rand, n int, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		var cart []order.CartItem
		for i := rng.Intn(4); i >= 0; i-- {
			slug, _, ok := reg.pick(rng)
			if !ok {
				break
			}
			qty := float64(rng.Intn(13) - 1)
			cart = append(cart, order.CartItem{Slug: slug, Qty: &qty})
		}

		_, err := h.Orders.PlaceOrder(ctx, order.Customer{
			Name:    fmt.Sprintf("Buyer %d", n),
			Phone:   "0611111111",
			City:    "Rabat",
			Address: "Agdal",
		}, cart)
		reg.tolerate(err, order.ErrEmptyCart, order.ErrNoValidItems)
		time.Sleep(time.Duration(15+rng.Intn(35)) * time.Millisecond)
	}
}

// Browser reads the public catalog and fails on any row that is not visible.
func Browser(ctx context.Context, h *infra.Harness, reg *Registry, rng *rand.Rand, stop <-chan struct{}) error {
	filters := []catalog.Filter{{}, {Category: "sheep"}, {City: "Meknès"}, {Query: "mouton"}}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		list, err := h.Catalog.ListPublic(ctx, filters[rng.Intn(len(filters))])
		reg.tolerate(err)
		for _, p := range list {
			if !p.IsActive || p.Status != catalog.StatusApproved {
				return fmt.Errorf("browser saw hidden product %s (status=%s active=%t)", p.Slug, p.Status, p.IsActive)
			}
		}
		time.Sleep(time.Duration(10+rng.Intn(20)) * time.Millisecond)
	}
}
