package catalog

import (
	"fmt"
	"math"

	"souqmarket/sanitize"
)

const (
	MinPriceMAD = 10
	MaxPriceMAD = 200000
	MaxImages   = 6

	maxTitleLen       = 120
	maxCategoryLen    = 40
	maxCityLen        = 80
	maxDescriptionLen = 1200
	maxImageURLLen    = 300
	maxGenderLen      = 20
	maxSlugLen        = 120
)

// normalize validates the submission and returns the product attributes it
// describes. Identity, ownership and lifecycle fields are left for the caller.
func (s Submission) normalize(defaultCity string) (Product, error) {
	p := Product{
		TitleFR:       sanitize.Text(s.TitleFR, maxTitleLen),
		TitleAR:       sanitize.Text(s.TitleAR, maxTitleLen),
		Category:      sanitize.Text(s.Category, maxCategoryLen),
		City:          sanitize.Text(s.City, maxCityLen),
		Gender:        sanitize.Text(s.Gender, maxGenderLen),
		Certified:     s.Certified,
		Delivery:      s.Delivery == nil || *s.Delivery,
		DescriptionFR: sanitize.Text(s.DescriptionFR, maxDescriptionLen),
		DescriptionAR: sanitize.Text(s.DescriptionAR, maxDescriptionLen),
	}
	if p.City == "" {
		p.City = sanitize.Text(defaultCity, maxCityLen)
	}

	if p.TitleFR == "" || p.TitleAR == "" || p.Category == "" || p.City == "" ||
		p.DescriptionFR == "" || p.DescriptionAR == "" {
		return Product{}, fmt.Errorf("%w: missing fields", ErrInvalidInput)
	}

	price, ok := wholeNumber(s.PriceMAD)
	if !ok || price < MinPriceMAD || price > MaxPriceMAD {
		return Product{}, fmt.Errorf("%w: invalid price", ErrInvalidInput)
	}
	p.PriceMAD = price

	if s.WeightKg != nil && !math.IsNaN(*s.WeightKg) && !math.IsInf(*s.WeightKg, 0) && *s.WeightKg >= 0 {
		w := *s.WeightKg
		p.WeightKg = &w
	}
	if s.AgeMonths != nil {
		if months, ok := wholeNumber(*s.AgeMonths); ok && months >= 0 {
			m := int(months)
			p.AgeMonths = &m
		}
	}

	p.Images = cleanImages(s.Images)
	if len(p.Images) == 0 {
		return Product{}, fmt.Errorf("%w: add at least 1 image URL (https://...)", ErrInvalidInput)
	}
	return p, nil
}

// cleanImages keeps the first MaxImages absolute https URLs.
func cleanImages(raw []string) []string {
	out := make([]string, 0, MaxImages)
	for _, candidate := range raw {
		u := sanitize.Text(candidate, maxImageURLLen)
		if !sanitize.HTTPSURL(u) {
			continue
		}
		out = append(out, u)
		if len(out) == MaxImages {
			break
		}
	}
	return out
}

func wholeNumber(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
