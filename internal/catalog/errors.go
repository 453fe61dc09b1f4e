package catalog

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of a catalog error. The HTTP
// layer maps kinds to status codes; callers use them to tell retryable
// infrastructure failures apart from business-rule rejections.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindProductNotFound   Kind = "product_not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInternal          Kind = "internal"
)

var (
	// ErrNotFound is returned by repository reads when no product matches.
	ErrNotFound = errors.New("product not found")

	// ErrStaleStock is returned by a conditional decrement whose guard no
	// longer holds: the amount changed between the read and the write.
	ErrStaleStock = errors.New("stock changed since read")
)

// Error carries a kind plus optional per-line detail for stock failures.
type Error struct {
	Kind      Kind
	Name      string
	Requested int
	Available int
	Message   string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notFound(name string) *Error {
	return &Error{
		Kind:    KindProductNotFound,
		Name:    name,
		Message: fmt.Sprintf("product %q not found", name),
		cause:   ErrNotFound,
	}
}

func insufficientStock(name string, requested, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Name:      name,
		Requested: requested,
		Available: available,
		Message:   fmt.Sprintf("insufficient stock for %q: requested %d, available %d", name, requested, available),
	}
}

func internalFailure(op string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: op, cause: cause}
}

// KindOf classifies err. Errors that did not originate in this package are
// treated as internal failures.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindProductNotFound
	}
	return KindInternal
}
