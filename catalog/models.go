package catalog

import "time"

// Status is the moderation state of a product.
type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
	StatusDeleted  Status = "deleted"
)

// Source records where a product came from.
type Source string

const (
	SourceSeed   Source = "seed"
	SourceFarmer Source = "farmer"
)

// Product is a catalog entry. FarmerID is empty for seed rows.
type Product struct {
	ID            string
	Slug          string
	TitleFR       string
	TitleAR       string
	Category      string
	City          string
	PriceMAD      int64
	WeightKg      *float64
	AgeMonths     *int
	Gender        string
	Certified     bool
	Delivery      bool
	Images        []string
	DescriptionFR string
	DescriptionAR string
	IsActive      bool
	FarmerID      string
	Status        Status
	Source        Source
	CreatedAt     time.Time
}

// Public reports whether the product may be shown to buyers.
func (p Product) Public() bool {
	return p.IsActive && p.Status == StatusApproved
}

// PendingProduct is a product awaiting moderation together with the
// submitting farmer's contact details.
type PendingProduct struct {
	Product
	FarmerName  string
	FarmerPhone string
}

// Filter narrows the public listing. Empty fields do not filter.
type Filter struct {
	Category string
	City     string
	Query    string
}

// Submission carries product attributes as supplied by a farmer or a seed
// file, before validation.
type Submission struct {
	TitleFR       string
	TitleAR       string
	Category      string
	City          string
	PriceMAD      float64
	WeightKg      *float64
	AgeMonths     *float64
	Gender        string
	Certified     bool
	Delivery      *bool
	Images        []string
	DescriptionFR string
	DescriptionAR string
}

// SeedItem is a pre-approved catalog entry with a fixed slug.
type SeedItem struct {
	Slug string
	Submission
}
