package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"souqmarket/catalog"
	"souqmarket/test/actors"
	"souqmarket/test/chaos"
	"souqmarket/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 4, "number of concurrent actors per role")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flChaos       = flag.Bool("chaos", false, "terminate random backends while actors run")
)

func TestMarketplaceConcurrency(t *testing.T) {
	h := sharedHarness(t)
	seed := *flSeed

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	reg := &actors.Registry{}
	reg.AddSeed(mustSeed(t, ctx, h.Catalog)...)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	rngFor := func(i int64) *rand.Rand { return rand.New(rand.NewSource(seed + i)) }

	for i := 0; i < *flConcurrency; i++ {
		n := i
		g.Go(func() error { return actors.Seller(ctx2, h, reg, rngFor(int64(10*n+1)), n, stop) })
		g.Go(func() error { return actors.Buyer(ctx2, h, reg, rngFor(int64(10*n+2)), n, stop) })
	}
	g.Go(func() error { return actors.Moderator(ctx2, h, reg, rngFor(3), stop) })
	g.Go(func() error { return actors.Moderator(ctx2, h, reg, rngFor(4), stop) })
	g.Go(func() error { return actors.Browser(ctx2, h, reg, rngFor(5), stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, h.Pool(), rngFor(6), stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			if checkOracles(t, ctx2, h.Pool(), seed) {
				failed = true
				break loop
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}
	if !failed {
		checkOracles(t, context.Background(), h.Pool(), seed)
	}

	unexpected := reg.Unexpected.Load()
	if unexpected > 0 && !*flChaos {
		t.Fatalf("%d unexpected errors without chaos (seed=%d)", unexpected, seed)
	}
	t.Logf("stress finished: unexpected errors=%d seed=%d", unexpected, seed)
}

// checkOracles reports whether an oracle failed; failures are recorded on t.
func checkOracles(t *testing.T, ctx context.Context, pool *pgxpool.Pool, seed int64) bool {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		t.Errorf("oracle error: %v", err)
		return true
	}
	if name != "" {
		dumpRecent(t, ctx, pool)
		t.Errorf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
		return true
	}
	return false
}

func mustSeed(t *testing.T, ctx context.Context, svc *catalog.Service) []string {
	t.Helper()
	items := make([]catalog.SeedItem, 0, 5)
	slugs := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		slug := fmt.Sprintf("p_seed_%d", i)
		slugs = append(slugs, slug)
		items = append(items, catalog.SeedItem{
			Slug: slug,
			Submission: catalog.Submission{
				TitleFR:       fmt.Sprintf("Agneau %d", i),
				TitleAR:       "حمل",
				Category:      "sheep",
				City:          "Fès",
				PriceMAD:      float64(1000 * (i + 1)),
				Images:        []string{"https://img.example.com/lamb.jpg"},
				DescriptionFR: "Race locale",
				DescriptionAR: "سلالة محلية",
			},
		})
	}
	if _, err := svc.ImportSeed(ctx, items); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return slugs
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"products", `SELECT slug, status, is_active, source, farmer_id, price_mad FROM products ORDER BY created_at DESC LIMIT 50`},
		{"orders", `SELECT id, subtotal_mad, items, created_at FROM orders ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
