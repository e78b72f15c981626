// Package seed loads pre-approved catalog entries from a YAML file.
package seed

import (
	"context"
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"gopkg.in/yaml.v3"

	"souqmarket/catalog"
)

var log = logging.Logger("seed")

// File is the on-disk layout of a seed catalog.
type File struct {
	Products []Product `yaml:"products"`
}

// Product is one seed entry.
type Product struct {
	Slug          string   `yaml:"slug"`
	TitleFR       string   `yaml:"title_fr"`
	TitleAR       string   `yaml:"title_ar"`
	Category      string   `yaml:"category"`
	City          string   `yaml:"city"`
	PriceMAD      float64  `yaml:"price_mad"`
	WeightKg      *float64 `yaml:"weight_kg"`
	AgeMonths     *float64 `yaml:"age_months"`
	Gender        string   `yaml:"gender"`
	Certified     bool     `yaml:"certified"`
	Delivery      *bool    `yaml:"delivery"`
	Images        []string `yaml:"images"`
	DescriptionFR string   `yaml:"description_fr"`
	DescriptionAR string   `yaml:"description_ar"`
}

// Importer is the catalog operation a seed run feeds.
type Importer interface {
	ImportSeed(ctx context.Context, items []catalog.SeedItem) (int, error)
}

// Parse decodes a seed catalog document.
func Parse(data []byte) ([]catalog.SeedItem, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}

	items := make([]catalog.SeedItem, 0, len(f.Products))
	for _, p := range f.Products {
		items = append(items, catalog.SeedItem{
			Slug: p.Slug,
			Submission: catalog.Submission{
				TitleFR:       p.TitleFR,
				TitleAR:       p.TitleAR,
				Category:      p.Category,
				City:          p.City,
				PriceMAD:      p.PriceMAD,
				WeightKg:      p.WeightKg,
				AgeMonths:     p.AgeMonths,
				Gender:        p.Gender,
				Certified:     p.Certified,
				Delivery:      p.Delivery,
				Images:        p.Images,
				DescriptionFR: p.DescriptionFR,
				DescriptionAR: p.DescriptionAR,
			},
		})
	}
	return items, nil
}

// Load reads and parses a seed catalog file.
func Load(path string) ([]catalog.SeedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// ImportFile loads path and imports its entries. Existing slugs are skipped.
func ImportFile(ctx context.Context, imp Importer, path string) (int, error) {
	items, err := Load(path)
	if err != nil {
		return 0, err
	}
	n, err := imp.ImportSeed(ctx, items)
	if err != nil {
		return n, fmt.Errorf("seed: import %s: %w", path, err)
	}
	log.Infow("seed file imported", "path", path, "entries", len(items), "inserted", n)
	return n, nil
}
