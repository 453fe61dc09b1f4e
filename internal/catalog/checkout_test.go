package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeStore applies guarded decrements immediately under a mutex and restores
// them on rollback, which is enough to model the conditional-write semantics
// the coordinator relies on.
type fakeStore struct {
	mu     sync.Mutex
	stocks map[string]int

	getErr     error
	beginErr   error
	decErr     error
	commitErr  error
	beginCount int
}

func newFakeStore(initial map[string]int) *fakeStore {
	cp := make(map[string]int, len(initial))
	for k, v := range initial {
		cp[k] = v
	}
	return &fakeStore{stocks: cp}
}

func (f *fakeStore) GetByName(ctx context.Context, name string) (Product, error) {
	if f.getErr != nil {
		return Product{}, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.stocks[name]
	if !ok {
		return Product{}, ErrNotFound
	}
	return Product{ID: "id-" + name, Name: name, Amount: v}, nil
}

func (f *fakeStore) Begin(ctx context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.mu.Lock()
	f.beginCount++
	f.mu.Unlock()
	return &fakeTx{store: f, applied: make(map[string]int)}, nil
}

func (f *fakeStore) DecrementStock(ctx context.Context, tx Tx, name string, observed, next int) (Product, error) {
	if f.decErr != nil {
		return Product{}, f.decErr
	}
	ftx := tx.(*fakeTx)
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.stocks[name]
	if !ok || current != observed {
		return Product{}, ErrStaleStock
	}
	ftx.applied[name] = current
	f.stocks[name] = next
	return Product{ID: "id-" + name, Name: name, Amount: next}, nil
}

type fakeTx struct {
	store   *fakeStore
	applied map[string]int // name -> pre-decrement amount

	committed  bool
	rolledBack bool
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	// The coordinator goes through DecrementStock, never raw SQL.
	panic("not used")
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.store.commitErr != nil {
		return tx.store.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.committed {
		return nil
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for name, prev := range tx.applied {
		tx.store.stocks[name] = prev
	}
	tx.rolledBack = true
	return nil
}

func TestValidateCart(t *testing.T) {
	tests := map[string]struct {
		cart []CartLine
		ok   bool
	}{
		"valid":            {cart: []CartLine{{Name: "widget", Amount: 1}}, ok: true},
		"empty cart":       {cart: nil},
		"empty name":       {cart: []CartLine{{Name: "", Amount: 1}}},
		"zero amount":      {cart: []CartLine{{Name: "widget", Amount: 0}}},
		"negative amount":  {cart: []CartLine{{Name: "widget", Amount: -2}}},
		"duplicate names":  {cart: []CartLine{{Name: "widget", Amount: 1}, {Name: "widget", Amount: 2}}},
		"dup after others": {cart: []CartLine{{Name: "a", Amount: 1}, {Name: "b", Amount: 1}, {Name: "a", Amount: 1}}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := ValidateCart(tt.cart)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error")
			}
			if KindOf(err) != KindInvalidInput {
				t.Fatalf("expected invalid_input, got %s", KindOf(err))
			}
		})
	}
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		initial  map[string]int
		cart     []CartLine
		wantKind Kind
		want     map[string]int // expected stock after the call
	}{
		"single line success": {
			initial: map[string]int{"widget": 10},
			cart:    []CartLine{{Name: "widget", Amount: 3}},
			want:    map[string]int{"widget": 7},
		},
		"multi line success": {
			initial: map[string]int{"widget": 10, "gadget": 5},
			cart: []CartLine{
				{Name: "widget", Amount: 3},
				{Name: "gadget", Amount: 5},
			},
			want: map[string]int{"widget": 7, "gadget": 0},
		},
		"exact stock drains to zero": {
			initial: map[string]int{"widget": 4},
			cart:    []CartLine{{Name: "widget", Amount: 4}},
			want:    map[string]int{"widget": 0},
		},
		"insufficient stock leaves everything unchanged": {
			initial: map[string]int{"widget": 10, "gadget": 1},
			cart: []CartLine{
				{Name: "widget", Amount: 3},
				{Name: "gadget", Amount: 5},
			},
			wantKind: KindInsufficientStock,
			want:     map[string]int{"widget": 10, "gadget": 1},
		},
		"unknown product": {
			initial: map[string]int{"widget": 10},
			cart: []CartLine{
				{Name: "widget", Amount: 1},
				{Name: "missing", Amount: 1},
			},
			wantKind: KindProductNotFound,
			want:     map[string]int{"widget": 10},
		},
		"duplicate lines rejected before any read": {
			initial: map[string]int{"widget": 10},
			cart: []CartLine{
				{Name: "widget", Amount: 1},
				{Name: "widget", Amount: 1},
			},
			wantKind: KindInvalidInput,
			want:     map[string]int{"widget": 10},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore(tt.initial)
			co := NewCoordinator(store)

			out, err := co.Checkout(ctx, tt.cart)
			if tt.wantKind != "" {
				if err == nil {
					t.Fatalf("expected error")
				}
				if got := KindOf(err); got != tt.wantKind {
					t.Fatalf("kind mismatch: got %s want %s", got, tt.wantKind)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(out) != len(tt.cart) {
					t.Fatalf("expected %d products, got %d", len(tt.cart), len(out))
				}
				for _, p := range out {
					if p.Amount != tt.want[p.Name] {
						t.Fatalf("result amount for %s: got %d want %d", p.Name, p.Amount, tt.want[p.Name])
					}
				}
			}

			for product, want := range tt.want {
				if got := store.stocks[product]; got != want {
					t.Fatalf("stock for %s: got %d want %d", product, got, want)
				}
			}
		})
	}
}

func TestCheckoutFailureDetail(t *testing.T) {
	store := newFakeStore(map[string]int{"gadget": 2})
	co := NewCoordinator(store)

	_, err := co.Checkout(context.Background(), []CartLine{{Name: "gadget", Amount: 5}})
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ce.Name != "gadget" || ce.Requested != 5 || ce.Available != 2 {
		t.Fatalf("unexpected detail: %+v", ce)
	}
}

func TestCheckoutStoreFailures(t *testing.T) {
	ctx := context.Background()
	cart := []CartLine{{Name: "widget", Amount: 1}}

	t.Run("read error is internal", func(t *testing.T) {
		store := newFakeStore(map[string]int{"widget": 5})
		store.getErr = errors.New("connection reset")
		co := NewCoordinator(store)

		_, err := co.Checkout(ctx, cart)
		if KindOf(err) != KindInternal {
			t.Fatalf("expected internal, got %v", err)
		}
	})

	t.Run("begin error is internal", func(t *testing.T) {
		store := newFakeStore(map[string]int{"widget": 5})
		store.beginErr = errors.New("cannot begin")
		co := NewCoordinator(store)

		_, err := co.Checkout(ctx, cart)
		if KindOf(err) != KindInternal {
			t.Fatalf("expected internal, got %v", err)
		}
		if store.stocks["widget"] != 5 {
			t.Fatalf("stock changed: %d", store.stocks["widget"])
		}
	})

	t.Run("decrement error rolls back", func(t *testing.T) {
		store := newFakeStore(map[string]int{"widget": 5})
		co := NewCoordinator(store)
		store.decErr = errors.New("update fail")

		_, err := co.Checkout(ctx, cart)
		if KindOf(err) != KindInternal {
			t.Fatalf("expected internal, got %v", err)
		}
		if store.stocks["widget"] != 5 {
			t.Fatalf("stock changed after failed decrement: %d", store.stocks["widget"])
		}
	})

	t.Run("commit error rolls back", func(t *testing.T) {
		store := newFakeStore(map[string]int{"widget": 5})
		store.commitErr = errors.New("commit fail")
		co := NewCoordinator(store)

		_, err := co.Checkout(ctx, cart)
		if KindOf(err) != KindInternal {
			t.Fatalf("expected internal, got %v", err)
		}
		if store.stocks["widget"] != 5 {
			t.Fatalf("stock changed after failed commit: %d", store.stocks["widget"])
		}
	})
}

func TestCheckoutFailureIsIdempotent(t *testing.T) {
	store := newFakeStore(map[string]int{"widget": 2})
	co := NewCoordinator(store)
	cart := []CartLine{{Name: "widget", Amount: 3}}

	for i := 0; i < 3; i++ {
		_, err := co.Checkout(context.Background(), cart)
		if KindOf(err) != KindInsufficientStock {
			t.Fatalf("call %d: expected insufficient_stock, got %v", i, err)
		}
		if store.stocks["widget"] != 2 {
			t.Fatalf("call %d: stock changed to %d", i, store.stocks["widget"])
		}
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	const stock = 4

	store := newFakeStore(map[string]int{"widget": stock})
	co := NewCoordinator(store)
	cart := []CartLine{{Name: "widget", Amount: stock}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = co.Checkout(context.Background(), cart)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if k := KindOf(err); k != KindInsufficientStock {
			t.Fatalf("losing checkout reported %s: %v", k, err)
		}
	}
	if succeeded > 1 {
		t.Fatalf("both concurrent checkouts succeeded")
	}
	if succeeded == 1 && store.stocks["widget"] != 0 {
		t.Fatalf("final stock %d, want 0", store.stocks["widget"])
	}
	if store.stocks["widget"] < 0 {
		t.Fatalf("stock went negative: %d", store.stocks["widget"])
	}
}
