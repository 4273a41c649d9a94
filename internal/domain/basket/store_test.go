package basket

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(user, id, price string, qty int, discounted bool) Item {
	return Item{
		Username:   user,
		ProductID:  id,
		Price:      decimal.RequireFromString(price),
		Quantity:   qty,
		Discounted: discounted,
	}
}

func TestMemoryStore_GetBasketCreatesOnce(t *testing.T) {
	s := NewMemoryStore()

	b1 := s.GetBasket("alice")
	b2 := s.GetBasket("alice")

	assert.Same(t, b1, b2)
	assert.Equal(t, "alice", b1.Username())
	assert.True(t, b1.Snapshot().IsEmpty())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_AddItemMergesQuantity(t *testing.T) {
	s := NewMemoryStore()

	s.AddItem(newItem("alice", "p1", "10.00", 2, false))
	s.AddItem(newItem("alice", "p1", "99.99", 3, true))

	snap := s.GetBasket("alice").Snapshot()
	require.Len(t, snap.Items, 1)

	got := snap.Items[0]
	assert.Equal(t, 5, got.Quantity)
	assert.True(t, decimal.RequireFromString("10.00").Equal(got.Price), "first add keeps its price")
	assert.False(t, got.Discounted, "first add keeps its discounted flag")
}

func TestMemoryStore_AddItemKeepsFirstAddOrder(t *testing.T) {
	s := NewMemoryStore()

	s.AddItem(newItem("alice", "b", "1", 1, false))
	s.AddItem(newItem("alice", "a", "1", 1, false))
	s.AddItem(newItem("alice", "b", "1", 1, false))

	snap := s.GetBasket("alice").Snapshot()
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "b", snap.Items[0].ProductID)
	assert.Equal(t, "a", snap.Items[1].ProductID)
}

func TestMemoryStore_AddItemIsolatesUsers(t *testing.T) {
	s := NewMemoryStore()

	s.AddItem(newItem("alice", "p1", "10", 1, false))
	s.AddItem(newItem("bob", "p1", "10", 4, false))

	assert.Equal(t, 1, s.GetBasket("alice").Snapshot().Items[0].Quantity)
	assert.Equal(t, 4, s.GetBasket("bob").Snapshot().Items[0].Quantity)
}

func TestMemoryStore_RemoveItem(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *MemoryStore)
		user    string
		product string
		want    bool
	}{
		{
			name:    "unknown user",
			setup:   func(*MemoryStore) {},
			user:    "ghost",
			product: "p1",
			want:    false,
		},
		{
			name: "unknown product",
			setup: func(s *MemoryStore) {
				s.AddItem(newItem("alice", "p1", "10", 1, false))
			},
			user:    "alice",
			product: "p2",
			want:    false,
		},
		{
			name: "existing product",
			setup: func(s *MemoryStore) {
				s.AddItem(newItem("alice", "p1", "10", 1, false))
			},
			user:    "alice",
			product: "p1",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			tt.setup(s)
			before := s.Len()

			got := s.RemoveItem(tt.user, tt.product)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, before, s.Len(), "remove never creates a basket")
		})
	}
}

func TestMemoryStore_RemoveItemThenReAdd(t *testing.T) {
	s := NewMemoryStore()
	s.AddItem(newItem("alice", "p1", "10", 2, false))

	require.True(t, s.RemoveItem("alice", "p1"))
	assert.False(t, s.RemoveItem("alice", "p1"))
	assert.True(t, s.GetBasket("alice").Snapshot().IsEmpty())

	s.AddItem(newItem("alice", "p1", "7", 1, true))
	snap := s.GetBasket("alice").Snapshot()
	require.Len(t, snap.Items, 1)
	assert.True(t, decimal.NewFromInt(7).Equal(snap.Items[0].Price))
	assert.Equal(t, 1, snap.Items[0].Quantity)
}

func TestMemoryStore_ConcurrentAdds(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddItem(newItem("alice", "p1", "1", 2, false))
		}()
	}
	wg.Wait()

	snap := s.GetBasket("alice").Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 100, snap.Items[0].Quantity)
}

func TestBasket_ApplyCodeCaseInsensitive(t *testing.T) {
	b := newBasket("alice")

	assert.True(t, b.ApplyCode("SUMMER10"))
	assert.False(t, b.ApplyCode("SUMMER10"))
	assert.False(t, b.ApplyCode("summer10"))
	assert.True(t, b.ApplyCode("WINTER5"))

	assert.Equal(t, []string{"SUMMER10", "WINTER5"}, b.Snapshot().AppliedCodes)
}

func TestBasket_SetShippingRegionOverwrites(t *testing.T) {
	b := newBasket("alice")
	assert.False(t, b.Snapshot().HasShippingRegion())

	b.SetShippingRegion("UK")
	b.SetShippingRegion("Other")

	snap := b.Snapshot()
	assert.True(t, snap.HasShippingRegion())
	assert.Equal(t, "Other", snap.ShippingRegion)
}

func TestSnapshot_Totals(t *testing.T) {
	b := newBasket("alice")
	b.addItem(newItem("alice", "p1", "10", 2, false))
	b.addItem(newItem("alice", "p2", "5", 2, true))
	b.addItem(newItem("alice", "p3", "0.25", 4, false))

	snap := b.Snapshot()
	assert.True(t, decimal.RequireFromString("21").Equal(snap.NonDiscountedTotal()))
	assert.True(t, decimal.RequireFromString("10").Equal(snap.DiscountedTotal()))
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	b := newBasket("alice")
	b.addItem(newItem("alice", "p1", "10", 1, false))

	snap := b.Snapshot()
	b.addItem(newItem("alice", "p1", "10", 1, false))
	b.ApplyCode("X")

	assert.Equal(t, 1, snap.Items[0].Quantity)
	assert.Empty(t, snap.AppliedCodes)
}
