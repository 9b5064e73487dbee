package inventory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/store"
	"github.com/roach88/fulfil/internal/testutil"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	ledger   *Ledger
	store    *store.Store
	recorder *testutil.Recorder
	clock    *testutil.Clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rec := testutil.NewRecorder()
	clock := testutil.NewClock(testNow)
	sender := notify.NewSender(rec,
		notify.WithIDGenerator(testutil.NewSequenceGenerator("n")),
		notify.WithClock(clock.Now),
	)

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	l, err := New(s, sender, opts...)
	require.NoError(t, err)
	return &fixture{ledger: l, store: s, recorder: rec, clock: clock}
}

func (f *fixture) addProduct(t *testing.T, id string, stock, reserved, minStock int64) {
	t.Helper()
	require.NoError(t, f.store.CreateProduct(context.Background(), domain.Product{
		ID:            id,
		Name:          "Product " + id,
		PartnerID:     "partner-1",
		Stock:         stock,
		ReservedStock: reserved,
		MinStock:      minStock,
		MaxStock:      100,
		UpdatedAt:     testNow,
	}))
}

func (f *fixture) product(t *testing.T, id string) domain.Product {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

// memStore is an in-memory Store used by the property tests.
type memStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMemStore(products ...domain.Product) *memStore {
	m := &memStore{products: make(map[string]domain.Product)}
	for _, p := range products {
		p.Inventory = p.Derive()
		p.SyncListing()
		m.products[p.ID] = p
	}
	return m
}

func (m *memStore) UpdateProduct(ctx context.Context, id string, fn func(p *domain.Product) error) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.NewNotFoundError("product", id)
	}
	if err := fn(&p); err != nil {
		return domain.Product{}, err
	}
	m.products[id] = p
	return p, nil
}
