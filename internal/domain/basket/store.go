package basket

import "sync"

// Store keeps one Basket per username for the lifetime of the process.
type Store interface {
	// GetBasket returns the basket for username, creating an empty one if
	// none exists yet.
	GetBasket(username string) *Basket
	// AddItem adds item to the basket of item.Username. A repeated product id
	// increases the quantity of the existing line.
	AddItem(item Item)
	// RemoveItem deletes the line for productID and reports whether it existed.
	RemoveItem(username, productID string) bool
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store. A single mutex guards the
// username-to-basket map; each Basket guards its own contents.
type MemoryStore struct {
	mu      sync.Mutex
	baskets map[string]*Basket
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{baskets: make(map[string]*Basket)}
}

// GetBasket implements Store.
func (s *MemoryStore) GetBasket(username string) *Basket {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.baskets[username]
	if !ok {
		b = newBasket(username)
		s.baskets[username] = b
	}
	return b
}

// Lookup returns the basket for username without creating one.
func (s *MemoryStore) Lookup(username string) (*Basket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.baskets[username]
	return b, ok
}

// Len returns the number of baskets held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.baskets)
}

// AddItem implements Store.
func (s *MemoryStore) AddItem(item Item) {
	s.GetBasket(item.Username).addItem(item)
}

// RemoveItem implements Store. It never creates a basket.
func (s *MemoryStore) RemoveItem(username, productID string) bool {
	b, ok := s.Lookup(username)
	if !ok {
		return false
	}
	return b.removeItem(productID)
}
