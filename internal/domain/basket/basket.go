package basket

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Item is one product line within a user's basket.
type Item struct {
	Username   string
	ProductID  string
	Price      decimal.Decimal
	Quantity   int
	Discounted bool
}

// LineTotal returns price multiplied by quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Basket holds one user's line items, applied discount codes and shipping
// region. All methods are safe for concurrent use.
type Basket struct {
	mu sync.RWMutex

	username string
	items    map[string]*Item
	order    []string // product ids in first-add order

	codes     []string // applied codes in application order
	codeIndex map[string]struct{}

	shippingRegion string
}

func newBasket(username string) *Basket {
	return &Basket{
		username:  username,
		items:     make(map[string]*Item),
		codeIndex: make(map[string]struct{}),
	}
}

// Username returns the owner of the basket.
func (b *Basket) Username() string {
	return b.username
}

// addItem merges item into the basket. An existing line only has its
// quantity increased; price and discounted flag of the first add are kept.
func (b *Basket) addItem(item Item) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.items[item.ProductID]; ok {
		existing.Quantity += item.Quantity
		return
	}
	stored := item
	b.items[item.ProductID] = &stored
	b.order = append(b.order, item.ProductID)
}

func (b *Basket) removeItem(productID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.items[productID]; !ok {
		return false
	}
	delete(b.items, productID)
	for i, id := range b.order {
		if id == productID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// ApplyCode records code as applied and reports whether it was newly added.
// Membership is case-insensitive: "summer10" is a repeat of "SUMMER10". The
// spelling of the first application is the one kept.
func (b *Basket) ApplyCode(code string) bool {
	key := strings.ToLower(code)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.codeIndex[key]; ok {
		return false
	}
	b.codeIndex[key] = struct{}{}
	b.codes = append(b.codes, code)
	return true
}

// SetShippingRegion replaces the basket's shipping region.
func (b *Basket) SetShippingRegion(region string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.shippingRegion = region
}

// Snapshot returns a consistent copy of the basket state.
func (b *Basket) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := make([]Item, 0, len(b.order))
	for _, id := range b.order {
		items = append(items, *b.items[id])
	}
	codes := make([]string, len(b.codes))
	copy(codes, b.codes)

	return Snapshot{
		Username:       b.username,
		Items:          items,
		AppliedCodes:   codes,
		ShippingRegion: b.shippingRegion,
	}
}

// Snapshot is an immutable view of a Basket at one point in time.
type Snapshot struct {
	Username string
	// Items in first-add order.
	Items []Item
	// AppliedCodes in application order.
	AppliedCodes []string
	// ShippingRegion is empty until a region is chosen.
	ShippingRegion string
}

// IsEmpty reports whether the basket has no items.
func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// HasShippingRegion reports whether a shipping region has been chosen.
func (s Snapshot) HasShippingRegion() bool {
	return s.ShippingRegion != ""
}

// DiscountedTotal sums line totals of items flagged as already discounted.
func (s Snapshot) DiscountedTotal() decimal.Decimal {
	return s.sum(true)
}

// NonDiscountedTotal sums line totals of items eligible for discount codes.
func (s Snapshot) NonDiscountedTotal() decimal.Decimal {
	return s.sum(false)
}

func (s Snapshot) sum(discounted bool) decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		if item.Discounted == discounted {
			total = total.Add(item.LineTotal())
		}
	}
	return total
}
