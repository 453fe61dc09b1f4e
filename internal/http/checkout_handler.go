package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/services/catalog-service-go/internal/catalog"
)

// Checkout decodes the cart, validates its shape, and hands it to the
// coordinator. On success the response body is the list of updated products
// and a CheckoutCompleted event is published best-effort; the decrement is
// already committed, so a publish failure is logged, never surfaced.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var cart []catalog.CartLine
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		writeError(w, errBadRequest("invalid JSON body"))
		return
	}
	if err := catalog.ValidateCart(cart); err != nil {
		writeError(w, err)
		return
	}

	products, err := h.checkout.Checkout(r.Context(), cart)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishCheckoutEvents(r, cart, products)
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) publishCheckoutEvents(r *http.Request, cart []catalog.CartLine, products []catalog.Product) {
	if h.events == nil {
		return
	}

	checkoutID := uuid.NewString()
	ctx := r.Context()

	if err := h.events.PublishCheckoutCompleted(ctx, checkoutID, cart, products); err != nil {
		h.logger.Printf("publish CheckoutCompleted %s: %v", checkoutID, err)
	}

	var depleted []catalog.Product
	for _, p := range products {
		if p.Amount == 0 {
			depleted = append(depleted, p)
		}
	}
	if len(depleted) == 0 {
		return
	}
	if err := h.events.PublishStockDepleted(ctx, checkoutID, depleted); err != nil {
		h.logger.Printf("publish StockDepleted %s: %v", checkoutID, err)
	}
}
