package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"souqmarket/catalog"
	"souqmarket/farmer"
	"souqmarket/order"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.catalog.ListPublic(r.Context(), catalog.Filter{
		Category: q.Get("category"),
		City:     q.Get("city"),
		Query:    q.Get("q"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductList(list))
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetPublicBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(p))
}

func (s *Server) handleFarmerPublic(w http.ResponseWriter, r *http.Request) {
	f, err := s.farmers.PublicProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := s.catalog.GetPublicByFarmer(r.Context(), f.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farmerPageResponse{
		Farmer: publicFarmerResponse{
			ID:        f.ID,
			Name:      f.Name,
			Phone:     f.Phone,
			City:      f.City,
			IsActive:  f.IsActive,
			CreatedAt: f.CreatedAt.Format(time.RFC3339),
		},
		Products: newProductList(products),
	})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := s.orders.PlaceOrder(r.Context(), order.Customer{
		Name:    req.CustomerName,
		Phone:   req.Phone,
		City:    req.City,
		Address: req.Address,
		Notes:   req.Notes,
	}, req.cart())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placeOrderResponse{ID: o.ID})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.farmers.Register(r.Context(), farmer.RegisterRequest{
		Name:     req.Name,
		Phone:    req.Phone,
		City:     req.City,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: res.Token, Farmer: newFarmerResponse(res.Farmer)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.farmers.Login(r.Context(), farmer.LoginRequest{Phone: req.Phone, Password: req.Password})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: res.Token, Farmer: newFarmerResponse(res.Farmer)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]farmerResponse{"farmer": newFarmerResponse(identityFrom(r.Context()))})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.farmers.Logout(r.Context(), tokenFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	id := identityFrom(r.Context())
	slug, err := s.catalog.CreatePending(r.Context(), id.ID, id.City, req.submission())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Slug: slug})
}

func (s *Server) handleOwnedProducts(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListOwnedByFarmer(r.Context(), identityFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductList(list))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	err := s.moderation.SelfDelete(r.Context(), chi.URLParam(r, "slug"), identityFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePendingProducts(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListPending(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]pendingProductResponse, 0, len(list))
	for _, p := range list {
		out = append(out, pendingProductResponse{
			productResponse: newProductResponse(p.Product),
			FarmerName:      p.FarmerName,
			FarmerPhone:     p.FarmerPhone,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := s.moderation.Approve(r.Context(), slug); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := s.moderation.Reject(r.Context(), slug); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
