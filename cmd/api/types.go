package main

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"souqmarket/catalog"
	"souqmarket/farmer"
	"souqmarket/order"
)

// number accepts a JSON number or a numeric string. Other values decode as NaN
// and fail validation downstream.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*n = number(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			f = math.NaN()
		}
		*n = number(f)
	default:
		*n = number(math.NaN())
	}
	return nil
}

func (n *number) float() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

type registerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	City     string `json:"city"`
	Password string `json:"password"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type farmerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	City  string `json:"city"`
}

func newFarmerResponse(id farmer.Identity) farmerResponse {
	return farmerResponse{ID: id.ID, Name: id.Name, Phone: id.Phone, City: id.City}
}

type authResponse struct {
	Token  string         `json:"token"`
	Farmer farmerResponse `json:"farmer"`
}

type publicFarmerResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	City      string `json:"city"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type farmerPageResponse struct {
	Farmer   publicFarmerResponse `json:"farmer"`
	Products []productResponse    `json:"products"`
}

type createProductRequest struct {
	TitleFR       string   `json:"title_fr"`
	TitleAR       string   `json:"title_ar"`
	Category      string   `json:"category"`
	City          string   `json:"city"`
	PriceMAD      *number  `json:"price_mad"`
	WeightKg      *number  `json:"weight_kg"`
	AgeMonths     *number  `json:"age_months"`
	Gender        string   `json:"gender"`
	Certified     bool     `json:"certified"`
	Delivery      *bool    `json:"delivery"`
	Images        []string `json:"images"`
	DescriptionFR string   `json:"description_fr"`
	DescriptionAR string   `json:"description_ar"`
}

func (req createProductRequest) submission() catalog.Submission {
	sub := catalog.Submission{
		TitleFR:       req.TitleFR,
		TitleAR:       req.TitleAR,
		Category:      req.Category,
		City:          req.City,
		WeightKg:      req.WeightKg.float(),
		AgeMonths:     req.AgeMonths.float(),
		Gender:        req.Gender,
		Certified:     req.Certified,
		Delivery:      req.Delivery,
		Images:        req.Images,
		DescriptionFR: req.DescriptionFR,
		DescriptionAR: req.DescriptionAR,
	}
	if req.PriceMAD != nil {
		sub.PriceMAD = float64(*req.PriceMAD)
	}
	return sub
}

type productResponse struct {
	ID            string   `json:"id"`
	Slug          string   `json:"slug"`
	TitleFR       string   `json:"title_fr"`
	TitleAR       string   `json:"title_ar"`
	Category      string   `json:"category"`
	City          string   `json:"city"`
	PriceMAD      int64    `json:"price_mad"`
	WeightKg      *float64 `json:"weight_kg"`
	AgeMonths     *int     `json:"age_months"`
	Gender        *string  `json:"gender"`
	Certified     bool     `json:"certified"`
	Delivery      bool     `json:"delivery"`
	Images        []string `json:"images"`
	DescriptionFR string   `json:"description_fr"`
	DescriptionAR string   `json:"description_ar"`
	FarmerID      *string  `json:"farmer_id"`
	Status        string   `json:"status"`
	Source        string   `json:"source"`
	CreatedAt     string   `json:"created_at"`
}

func newProductResponse(p catalog.Product) productResponse {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productResponse{
		ID:            p.ID,
		Slug:          p.Slug,
		TitleFR:       p.TitleFR,
		TitleAR:       p.TitleAR,
		Category:      p.Category,
		City:          p.City,
		PriceMAD:      p.PriceMAD,
		WeightKg:      p.WeightKg,
		AgeMonths:     p.AgeMonths,
		Gender:        optional(p.Gender),
		Certified:     p.Certified,
		Delivery:      p.Delivery,
		Images:        images,
		DescriptionFR: p.DescriptionFR,
		DescriptionAR: p.DescriptionAR,
		FarmerID:      optional(p.FarmerID),
		Status:        string(p.Status),
		Source:        string(p.Source),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}

func newProductList(list []catalog.Product) []productResponse {
	out := make([]productResponse, 0, len(list))
	for _, p := range list {
		out = append(out, newProductResponse(p))
	}
	return out
}

type pendingProductResponse struct {
	productResponse
	FarmerName  string `json:"farmer_name"`
	FarmerPhone string `json:"farmer_phone"`
}

type placeOrderRequest struct {
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	City         string          `json:"city"`
	Address      string          `json:"address"`
	Notes        string          `json:"notes"`
	Items        json.RawMessage `json:"items"`
}

type cartItemRequest struct {
	Slug any     `json:"slug"`
	Qty  *number `json:"qty"`
}

// cart keeps only object-shaped entries. Client-sent prices and titles are
// not even decoded.
func (req placeOrderRequest) cart() []order.CartItem {
	var raw []json.RawMessage
	if len(req.Items) == 0 || json.Unmarshal(req.Items, &raw) != nil {
		return nil
	}
	items := make([]order.CartItem, 0, len(raw))
	for _, r := range raw {
		var it cartItemRequest
		if json.Unmarshal(r, &it) != nil {
			continue
		}
		slug, _ := it.Slug.(string)
		items = append(items, order.CartItem{Slug: slug, Qty: it.Qty.float()})
	}
	return items
}

type placeOrderResponse struct {
	ID string `json:"id"`
}

type orderResponse struct {
	ID           string       `json:"id"`
	CreatedAt    string       `json:"created_at"`
	CustomerName string       `json:"customer_name"`
	Phone        string       `json:"phone"`
	City         string       `json:"city"`
	Address      string       `json:"address"`
	Notes        *string      `json:"notes"`
	SubtotalMAD  int64        `json:"subtotal_mad"`
	Status       string       `json:"status"`
	Items        []order.Line `json:"items"`
}

func newOrderResponse(o order.Order) orderResponse {
	items := o.Items
	if items == nil {
		items = []order.Line{}
	}
	return orderResponse{
		ID:           o.ID,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
		CustomerName: o.Customer.Name,
		Phone:        o.Customer.Phone,
		City:         o.Customer.City,
		Address:      o.Customer.Address,
		Notes:        optional(o.Customer.Notes),
		SubtotalMAD:  o.SubtotalMAD,
		Status:       o.Status,
		Items:        items,
	}
}

type okResponse struct {
	OK   bool   `json:"ok"`
	Slug string `json:"slug,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
