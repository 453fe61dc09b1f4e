package catalog

// Product is the persisted catalog entity. Checkout only ever touches Amount;
// the remaining fields are free-form catalog attributes.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int    `json:"priceCents"`
	Amount      int    `json:"amount"`
}

// CartLine is one requested (product name, quantity) pair in a checkout call.
type CartLine struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}
