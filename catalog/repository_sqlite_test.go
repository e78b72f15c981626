package catalog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"souqmarket/catalog"
	"souqmarket/db/dbtest"
	"souqmarket/farmer"
)

var baseTime = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func seedFarmer(t *testing.T, repo farmer.Repository, id, phone string) {
	t.Helper()
	f := farmer.Farmer{
		ID:           id,
		Phone:        phone,
		Name:         "Farmer " + id,
		City:         "Fès",
		PasswordHash: farmer.PasswordHash{Algorithm: farmer.AlgorithmScrypt, Salt: "00", Key: []byte{1}},
		IsActive:     true,
		CreatedAt:    baseTime,
	}
	require.NoError(t, repo.CreateWithSession(context.Background(), f, farmer.Session{Token: "sess_" + id, FarmerID: id, CreatedAt: baseTime}))
}

func product(slug string, n int, status catalog.Status, source catalog.Source, farmerID string) catalog.Product {
	age := 8
	return catalog.Product{
		ID:            "prd_" + slug,
		Slug:          slug,
		TitleFR:       "Mouton " + slug,
		TitleAR:       "خروف",
		Category:      "sheep",
		City:          "Fès",
		PriceMAD:      1000,
		AgeMonths:     &age,
		Delivery:      true,
		Images:        []string{"https://img.example.com/" + slug + ".jpg"},
		DescriptionFR: "Description 100% naturelle",
		DescriptionAR: "وصف",
		IsActive:      true,
		FarmerID:      farmerID,
		Status:        status,
		Source:        source,
		CreatedAt:     baseTime.Add(time.Duration(n) * time.Minute),
	}
}

func TestSQLiteRepository_PublicVisibility(t *testing.T) {
	ctx := context.Background()
	b := dbtest.SQLite(t)
	seedFarmer(t, b.Farmers, "far_a", "0600000001")
	repo := b.Products

	require.NoError(t, repo.Create(ctx, product("seed-1", 1, catalog.StatusApproved, catalog.SourceSeed, "")))
	require.NoError(t, repo.Create(ctx, product("pend-1", 2, catalog.StatusPending, catalog.SourceFarmer, "far_a")))
	require.NoError(t, repo.Create(ctx, product("appr-1", 3, catalog.StatusApproved, catalog.SourceFarmer, "far_a")))
	rejected := product("rej-1", 4, catalog.StatusRejected, catalog.SourceFarmer, "far_a")
	rejected.IsActive = false
	require.NoError(t, repo.Create(ctx, rejected))

	list, err := repo.ListPublic(ctx, catalog.Filter{}, 200)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "appr-1", list[0].Slug, "newest first")
	require.Equal(t, "seed-1", list[1].Slug)
	require.Equal(t, []string{"https://img.example.com/appr-1.jpg"}, list[0].Images)
	require.NotNil(t, list[0].AgeMonths)
	require.Equal(t, 8, *list[0].AgeMonths)
	require.Nil(t, list[0].WeightKg)

	_, err = repo.GetPublicBySlug(ctx, "pend-1")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = repo.GetPublicBySlug(ctx, "rej-1")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	got, err := repo.GetPublicBySlug(ctx, "seed-1")
	require.NoError(t, err)
	require.Equal(t, catalog.SourceSeed, got.Source)
	require.Empty(t, got.FarmerID)

	byFarmer, err := repo.ListApprovedByFarmer(ctx, "far_a", 200)
	require.NoError(t, err)
	require.Len(t, byFarmer, 1)
	require.Equal(t, "appr-1", byFarmer[0].Slug)

	owned, err := repo.ListOwnedByFarmer(ctx, "far_a", 200)
	require.NoError(t, err)
	require.Len(t, owned, 3)
}

func TestSQLiteRepository_NullStatusIsApproved(t *testing.T) {
	ctx := context.Background()
	b := dbtest.SQLite(t)

	require.NoError(t, b.Products.Create(ctx, product("legacy", 1, catalog.StatusApproved, catalog.SourceSeed, "")))
	conn := dbtest.RawSQLite(t, b)
	_, err := conn.ExecContext(ctx, `UPDATE products SET status = NULL WHERE slug = 'legacy'`)
	require.NoError(t, err)

	got, err := b.Products.GetPublicBySlug(ctx, "legacy")
	require.NoError(t, err)
	require.Equal(t, catalog.StatusApproved, got.Status)
}

func TestSQLiteRepository_Filters(t *testing.T) {
	ctx := context.Background()
	repo := dbtest.SQLite(t).Products

	a := product("a", 1, catalog.StatusApproved, catalog.SourceSeed, "")
	a.Category, a.City = "goat", "Rabat"
	bb := product("b", 2, catalog.StatusApproved, catalog.SourceSeed, "")
	bb.TitleFR = "Agneau de lait"
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, bb))

	list, err := repo.ListPublic(ctx, catalog.Filter{Category: "goat"}, 200)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a", list[0].Slug)

	list, err = repo.ListPublic(ctx, catalog.Filter{City: "Fès"}, 200)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "b", list[0].Slug)

	list, err = repo.ListPublic(ctx, catalog.Filter{Query: "AGNEAU"}, 200)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "b", list[0].Slug)

	// Wildcards in the query are matched literally.
	list, err = repo.ListPublic(ctx, catalog.Filter{Query: "100%"}, 200)
	require.NoError(t, err)
	require.Len(t, list, 2)
	list, err = repo.ListPublic(ctx, catalog.Filter{Query: "1_0"}, 200)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSQLiteRepository_QueryFoldsAccentedCase(t *testing.T) {
	ctx := context.Background()
	repo := dbtest.SQLite(t).Products

	ram := product("ram", 1, catalog.StatusApproved, catalog.SourceSeed, "")
	ram.TitleFR = "Bélier de l'Atlas"
	require.NoError(t, repo.Create(ctx, ram))
	require.NoError(t, repo.Create(ctx, product("other", 2, catalog.StatusApproved, catalog.SourceSeed, "")))

	for _, q := range []string{"bélier", "BÉLIER", "Bélier DE", "ÉLIER"} {
		list, err := repo.ListPublic(ctx, catalog.Filter{Query: q}, 200)
		require.NoError(t, err, q)
		require.Len(t, list, 1, q)
		require.Equal(t, "ram", list[0].Slug, q)
	}

	list, err := repo.ListPublic(ctx, catalog.Filter{Query: "BÈLIER"}, 200)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSQLiteRepository_ListCap(t *testing.T) {
	ctx := context.Background()
	repo := dbtest.SQLite(t).Products
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, product(fmt.Sprintf("p%d", i), i, catalog.StatusApproved, catalog.SourceSeed, "")))
	}
	list, err := repo.ListPublic(ctx, catalog.Filter{}, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "p4", list[0].Slug)
}

func TestSQLiteRepository_SlugUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := dbtest.SQLite(t).Products

	require.NoError(t, repo.Create(ctx, product("dup", 1, catalog.StatusApproved, catalog.SourceSeed, "")))
	other := product("dup", 2, catalog.StatusApproved, catalog.SourceSeed, "")
	other.ID = "prd_other"
	require.ErrorIs(t, repo.Create(ctx, other), catalog.ErrDuplicateSlug)

	inserted, err := repo.CreateSeed(ctx, other)
	require.NoError(t, err)
	require.False(t, inserted)

	fresh := product("fresh", 3, catalog.StatusApproved, catalog.SourceSeed, "")
	inserted, err = repo.CreateSeed(ctx, fresh)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestSQLiteRepository_UpdateStatusCompareAndSet(t *testing.T) {
	ctx := context.Background()
	b := dbtest.SQLite(t)
	seedFarmer(t, b.Farmers, "far_a", "0600000001")
	repo := b.Products

	require.NoError(t, repo.Create(ctx, product("s1", 1, catalog.StatusPending, catalog.SourceFarmer, "far_a")))
	require.NoError(t, repo.Create(ctx, product("seed", 2, catalog.StatusApproved, catalog.SourceSeed, "")))

	require.NoError(t, repo.UpdateStatus(ctx, "s1", catalog.StatusPending, catalog.StatusApproved, false))
	got, err := repo.GetBySlug(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, catalog.StatusApproved, got.Status)
	require.True(t, got.IsActive)

	// Stale expectation.
	require.ErrorIs(t, repo.UpdateStatus(ctx, "s1", catalog.StatusPending, catalog.StatusRejected, true), catalog.ErrStaleStatus)

	require.NoError(t, repo.UpdateStatus(ctx, "s1", catalog.StatusApproved, catalog.StatusDeleted, true))
	got, err = repo.GetBySlug(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, catalog.StatusDeleted, got.Status)
	require.False(t, got.IsActive)

	// Seed rows are never moved.
	require.ErrorIs(t, repo.UpdateStatus(ctx, "seed", catalog.StatusApproved, catalog.StatusDeleted, true), catalog.ErrStaleStatus)

	_, err = repo.GetBySlug(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSQLiteRepository_ListPending(t *testing.T) {
	ctx := context.Background()
	b := dbtest.SQLite(t)
	seedFarmer(t, b.Farmers, "far_a", "0600000001")
	repo := b.Products

	require.NoError(t, repo.Create(ctx, product("pend", 1, catalog.StatusPending, catalog.SourceFarmer, "far_a")))
	require.NoError(t, repo.Create(ctx, product("appr", 2, catalog.StatusApproved, catalog.SourceFarmer, "far_a")))

	pending, err := repo.ListPending(ctx, 200)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "pend", pending[0].Slug)
	require.Equal(t, "Farmer far_a", pending[0].FarmerName)
	require.Equal(t, "0600000001", pending[0].FarmerPhone)
}
