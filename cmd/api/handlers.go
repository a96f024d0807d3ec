package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/safar/storefront/internal/checkout"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/store"
	"github.com/shopspring/decimal"
)

type server struct {
	db        *sql.DB
	users     *store.Users
	products  *store.Products
	inventory *store.Inventory
	carts     *store.Carts
	orders    *store.Orders
	checkout  *checkout.Service
	log       zerolog.Logger
}

func (s *server) routes(r chi.Router) {
	r.Post("/users", s.handleCreateUser)
	r.Get("/users/{id}", s.handleGetUser)

	r.Post("/products", s.handleCreateProduct)
	r.Get("/products", s.handleListProducts)
	r.Get("/products/{id}", s.handleGetProduct)
	r.Post("/products/{id}/restock", s.handleRestock)

	r.Get("/cart", s.handleGetCart)
	r.Post("/cart/items", s.handleAddToCart)
	r.Put("/cart/items/{id}", s.handleUpdateCartItem)
	r.Delete("/cart/items/{id}", s.handleRemoveCartItem)
	r.Delete("/cart", s.handleClearCart)
	r.Get("/cart/validate", s.handleValidateCart)

	r.Post("/checkout", s.handleCheckout)

	r.Get("/orders", s.handleListOrders)
	r.Get("/orders/{id}", s.handleGetOrder)
	r.Patch("/orders/{id}/status", s.handleUpdateOrderStatus)
}

// currentUser reads the user identity established upstream. Session and
// auth handling live in front of this service; by the time a request
// lands here the user id header is trusted.
func currentUser(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.Create(r.Context(), s.db, req.Email, req.Name)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.users.Get(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU         string `json:"sku"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Price       string `json:"price"`
		Stock       int    `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid price")
		return
	}
	if req.Stock < 0 {
		respondError(w, http.StatusBadRequest, "stock cannot be negative")
		return
	}

	product, err := s.products.Create(r.Context(), s.db, req.SKU, req.Name, req.Description, price, req.Stock)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

func (s *server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := s.products.List(r.Context(), s.db, page, pageSize)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := s.products.Get(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *server) handleRestock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}

	if err := s.inventory.IncreaseStock(r.Context(), s.db, id, req.Quantity); err != nil {
		s.respondStoreError(w, err)
		return
	}

	product, err := s.products.Get(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func (s *server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items, err := s.carts.ItemsForUser(r.Context(), s.db, userID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 || req.Quantity > 1000 {
		respondError(w, http.StatusBadRequest, "quantity must be between 1 and 1000")
		return
	}

	result, err := s.carts.AddToCart(r.Context(), s.db, userID, req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, database.ErrOutOfStock) {
			respondError(w, http.StatusConflict, "product is out of stock")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// requireCartItemOwner is the policy gate: a user may only touch their
// own cart lines.
func (s *server) requireCartItemOwner(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return 0, 0, false
	}

	itemID, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid cart item id")
		return 0, 0, false
	}

	item, err := s.carts.GetItem(r.Context(), s.db, itemID)
	if err != nil {
		s.respondStoreError(w, err)
		return 0, 0, false
	}
	if !item.OwnedBy(userID) {
		respondError(w, http.StatusForbidden, "cart item does not belong to you")
		return 0, 0, false
	}

	return userID, itemID, true
}

func (s *server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	_, itemID, ok := s.requireCartItemOwner(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}

	if err := s.carts.UpdateQuantity(r.Context(), s.db, itemID, req.Quantity); err != nil {
		s.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	_, itemID, ok := s.requireCartItemOwner(w, r)
	if !ok {
		return
	}

	if err := s.carts.RemoveItem(r.Context(), s.db, itemID); err != nil {
		s.respondStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	removed, err := s.carts.ClearUserCart(r.Context(), s.db, userID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *server) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	validation, err := s.checkout.ValidateCart(r.Context(), userID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, validation)
}

func (s *server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	result, err := s.checkout.ProcessCheckout(r.Context(), userID)
	if err != nil {
		var shortage *checkout.InsufficientStockError
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			respondError(w, http.StatusUnprocessableEntity, "your cart is empty")
		case errors.As(err, &shortage):
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":  "insufficient stock",
				"errors": shortage.Shortages,
			})
		default:
			respondError(w, http.StatusInternalServerError, "checkout failed, please try again")
		}
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

func (s *server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if r.URL.Query().Has("cursor") {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 100 {
			limit = 20
		}
		result, err := s.orders.ListUserOrdersCursor(r.Context(), s.db, userID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			s.respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	page, pageSize := pageParams(r)
	result, err := s.orders.ListUserOrders(r.Context(), s.db, userID, page, pageSize)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := s.orders.GetOrder(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if order.UserID != userID {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.orders.UpdateStatus(r.Context(), s.db, id, req.Status); err != nil {
		s.respondStoreError(w, err)
		return
	}

	order, err := s.orders.GetOrder(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (s *server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrCartItemNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
