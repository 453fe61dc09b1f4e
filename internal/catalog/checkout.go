package catalog

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Coordinator runs the multi-line checkout: verify availability for every cart
// line and atomically apply all stock decrements, or apply none.
//
// Lines are validated concurrently; the first failing line cancels its
// siblings and becomes the reported error (fail fast). The staged decrements
// are then applied inside a single transaction, each guarded by the amount
// observed at read time, so a concurrent checkout that touched the same
// product aborts this one instead of losing an update. The coordinator never
// retries; retry policy belongs to the caller.
type Coordinator struct {
	store CheckoutStore
}

func NewCoordinator(store CheckoutStore) *Coordinator {
	return &Coordinator{store: store}
}

// ValidateCart rejects malformed carts before any store access: empty carts,
// empty names, non-positive amounts, and duplicate names. Duplicates are
// refused here so that every line's conditional write is guarded by an
// independent read.
func ValidateCart(cart []CartLine) error {
	if len(cart) == 0 {
		return invalidInput("cart is empty")
	}
	seen := make(map[string]struct{}, len(cart))
	for i, line := range cart {
		if line.Name == "" {
			return invalidInput("cart line %d: name is empty", i)
		}
		if line.Amount <= 0 {
			return invalidInput("cart line %d (%q): amount must be positive, got %d", i, line.Name, line.Amount)
		}
		if _, dup := seen[line.Name]; dup {
			return invalidInput("cart line %d: duplicate product %q", i, line.Name)
		}
		seen[line.Name] = struct{}{}
	}
	return nil
}

type stagedLine struct {
	name      string
	requested int
	observed  int
	next      int
}

// Checkout decrements stock for every cart line or leaves the store untouched.
// The returned products reflect post-decrement state in processing order,
// which may differ from cart order.
func (c *Coordinator) Checkout(ctx context.Context, cart []CartLine) ([]Product, error) {
	if err := ValidateCart(cart); err != nil {
		return nil, err
	}

	staged := make([]stagedLine, len(cart))

	g, gctx := errgroup.WithContext(ctx)
	for i, line := range cart {
		i, line := i, line
		g.Go(func() error {
			p, err := c.store.GetByName(gctx, line.Name)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return notFound(line.Name)
				}
				return internalFailure("read product", err)
			}
			if line.Amount > p.Amount {
				return insufficientStock(line.Name, line.Amount, p.Amount)
			}
			staged[i] = stagedLine{
				name:      line.Name,
				requested: line.Amount,
				observed:  p.Amount,
				next:      p.Amount - line.Amount,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, internalFailure("begin transaction", err)
	}

	out := make([]Product, 0, len(staged))
	for _, s := range staged {
		p, err := c.store.DecrementStock(ctx, tx, s.name, s.observed, s.next)
		if err != nil {
			_ = tx.Rollback(ctx)
			if errors.Is(err, ErrStaleStock) {
				return nil, c.classifyStale(ctx, s)
			}
			return nil, internalFailure("stage decrement", err)
		}
		out = append(out, p)
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return nil, internalFailure("commit checkout", err)
	}
	return out, nil
}

// classifyStale re-reads a line whose conditional write lost its guard. A
// still-present row means a concurrent decrement won the race, reported as
// insufficient stock against the current amount; a vanished row is reported
// as not found.
func (c *Coordinator) classifyStale(ctx context.Context, s stagedLine) error {
	p, err := c.store.GetByName(ctx, s.name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(s.name)
		}
		return internalFailure("re-read after conflict", err)
	}
	return insufficientStock(s.name, s.requested, p.Amount)
}
