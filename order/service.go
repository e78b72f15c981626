package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"souqmarket/ident"
	"souqmarket/sanitize"
)

var log = logging.Logger("order")

var (
	// ErrInvalidInput signals missing or malformed customer fields.
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrEmptyCart signals a checkout without any cart lines.
	ErrEmptyCart = errors.New("order: empty cart")
	// ErrNoValidItems signals that every cart line was dropped.
	ErrNoValidItems = errors.New("order: no valid items")
)

const (
	MinQty    = 1
	MaxQty    = 10
	ListLimit = 200

	maxNameLen    = 120
	maxPhoneLen   = 40
	maxCityLen    = 80
	maxAddressLen = 220
	maxNotesLen   = 500
	maxSlugLen    = 120
)

// Service prices carts against the catalog and records orders.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService creates an order service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return ident.New(ident.PrefixOrder) },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PlaceOrder validates the customer, drops unusable cart lines, prices the
// rest from the catalog and stores the order. Pricing and insert share one
// transaction; when no line survives nothing is written.
func (s *Service) PlaceOrder(ctx context.Context, c Customer, items []CartItem) (Order, error) {
	c = Customer{
		Name:    sanitize.Text(c.Name, maxNameLen),
		Phone:   sanitize.Text(c.Phone, maxPhoneLen),
		City:    sanitize.Text(c.City, maxCityLen),
		Address: sanitize.Text(c.Address, maxAddressLen),
		Notes:   sanitize.Text(c.Notes, maxNotesLen),
	}
	if c.Name == "" || c.Phone == "" || c.City == "" || c.Address == "" {
		return Order{}, fmt.Errorf("%w: missing fields", ErrInvalidInput)
	}
	if len(items) == 0 {
		return Order{}, ErrEmptyCart
	}

	o := Order{
		ID:        s.newID(),
		Customer:  c,
		Status:    StatusNew,
		CreatedAt: s.now().UTC(),
	}

	err := s.repo.WithinTx(ctx, func(tx Tx) error {
		lines := make([]Line, 0, len(items))
		var subtotal int64
		for _, item := range items {
			slug := sanitize.Text(item.Slug, maxSlugLen)
			qty, ok := quantity(item.Qty)
			if slug == "" || !ok {
				continue
			}

			p, err := tx.LookupPublic(ctx, slug)
			if err != nil {
				if errors.Is(err, ErrProductUnavailable) {
					continue
				}
				return err
			}

			lines = append(lines, Line{
				Slug:     p.Slug,
				TitleFR:  p.TitleFR,
				TitleAR:  p.TitleAR,
				PriceMAD: p.PriceMAD,
				Qty:      qty,
			})
			subtotal += p.PriceMAD * int64(qty)
		}
		if len(lines) == 0 {
			return ErrNoValidItems
		}

		o.Items = lines
		o.SubtotalMAD = subtotal
		return tx.Insert(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}

	log.Infow("order placed", "order_id", o.ID, "lines", len(o.Items), "subtotal_mad", o.SubtotalMAD)
	return o, nil
}

// List returns the most recent orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx, ListLimit)
}

func quantity(q *float64) (int, bool) {
	if q == nil {
		return MinQty, true
	}
	v := *q
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v < MinQty || v > MaxQty {
		return 0, false
	}
	return int(v), true
}
