package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/services/catalog-service-go/internal/catalog"
)

// Checkouter is the slice of the coordinator the HTTP layer depends on.
type Checkouter interface {
	Checkout(ctx context.Context, cart []catalog.CartLine) ([]catalog.Product, error)
}

// CheckoutPublisher emits events after a successful checkout. May be nil when
// messaging is disabled.
type CheckoutPublisher interface {
	PublishCheckoutCompleted(ctx context.Context, checkoutID string, lines []catalog.CartLine, results []catalog.Product) error
	PublishStockDepleted(ctx context.Context, checkoutID string, depleted []catalog.Product) error
}

type Handler struct {
	repo     catalog.Repository
	checkout Checkouter
	events   CheckoutPublisher
	logger   *log.Logger
}

func NewHandler(repo catalog.Repository, checkout Checkouter, events CheckoutPublisher, logger *log.Logger) *Handler {
	return &Handler{repo: repo, checkout: checkout, events: events, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := h.repo.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int    `json:"priceCents"`
	Amount      int    `json:"amount"`
}

func (req productRequest) validate() error {
	if req.Name == "" {
		return errBadRequest("name is required")
	}
	if req.Amount < 0 {
		return errBadRequest("amount must not be negative")
	}
	if req.PriceCents < 0 {
		return errBadRequest("priceCents must not be negative")
	}
	return nil
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.repo.Create(r.Context(), catalog.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Amount:      req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest("invalid JSON body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.repo.Update(r.Context(), catalog.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Amount:      req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type errorBody struct {
	Kind    catalog.Kind `json:"kind"`
	Message string       `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := catalog.KindOf(err)

	var status int
	switch kind {
	case catalog.KindInvalidInput:
		status = http.StatusBadRequest
	case catalog.KindProductNotFound:
		status = http.StatusNotFound
	case catalog.KindInsufficientStock:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	if kind == catalog.KindInternal {
		// Do not leak driver detail to callers.
		msg = "internal error"
	}
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: msg}})
}

func errBadRequest(msg string) error {
	return &catalog.Error{Kind: catalog.KindInvalidInput, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
