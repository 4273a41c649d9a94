package pricing

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopping-basket/internal/domain/basket"
)

// ErrInvalidArgument is matched by every InvalidArgumentError.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgumentError reports a missing or blank required input.
type InvalidArgumentError struct {
	Argument string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s is required", e.Argument)
}

// Is makes errors.Is(err, ErrInvalidArgument) hold.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// ItemRequest is one line of an add-items call.
type ItemRequest struct {
	ProductID  string
	Price      decimal.Decimal
	Quantity   int
	Discounted bool
}

// Service is the basket pricing contract consumed by the HTTP layer.
//
// Boolean results carry "not found" (RemoveItem) and "rejected"
// (ApplyDiscountCode, SetShippingCountry) outcomes; errors are returned only
// for invalid arguments.
type Service interface {
	AddItems(username string, requests []ItemRequest) error
	RemoveItem(username, productID string) (bool, error)
	ApplyDiscountCode(username, code string) (bool, error)
	SetShippingCountry(username, country string) (bool, error)
	GetTotal(username string, includeVAT bool) (decimal.Decimal, error)
	GetBasketItems(username string) ([]basket.Item, error)
}

var _ Service = (*BasketService)(nil)

// BasketService implements Service over a basket.Store and static Tables.
type BasketService struct {
	store  basket.Store
	tables Tables
}

// NewService creates a BasketService. The tables are copied.
func NewService(store basket.Store, tables Tables) *BasketService {
	return &BasketService{
		store:  store,
		tables: tables.clone(),
	}
}

// AddItems adds every request to the user's basket in order.
func (s *BasketService) AddItems(username string, requests []ItemRequest) error {
	if err := required("username", username); err != nil {
		return err
	}
	if len(requests) == 0 {
		return &InvalidArgumentError{Argument: "items"}
	}

	for _, req := range requests {
		s.store.AddItem(basket.Item{
			Username:   username,
			ProductID:  req.ProductID,
			Price:      req.Price,
			Quantity:   req.Quantity,
			Discounted: req.Discounted,
		})
	}
	return nil
}

// RemoveItem deletes a product line and reports whether it existed.
func (s *BasketService) RemoveItem(username, productID string) (bool, error) {
	if err := required("username", username); err != nil {
		return false, err
	}
	if err := required("product id", productID); err != nil {
		return false, err
	}
	return s.store.RemoveItem(username, productID), nil
}

// ApplyDiscountCode applies a configured code once per basket. Unknown codes
// are rejected without creating a basket. The table lookup is
// case-sensitive while the already-applied check is not.
func (s *BasketService) ApplyDiscountCode(username, code string) (bool, error) {
	if err := required("username", username); err != nil {
		return false, err
	}
	if err := required("discount code", code); err != nil {
		return false, err
	}
	if _, ok := s.tables.Discounts[code]; !ok {
		return false, nil
	}
	return s.store.GetBasket(username).ApplyCode(code), nil
}

// SetShippingCountry selects a configured shipping region, replacing any
// previous choice. Unknown regions are rejected without creating a basket.
func (s *BasketService) SetShippingCountry(username, country string) (bool, error) {
	if err := required("username", username); err != nil {
		return false, err
	}
	if err := required("country", country); err != nil {
		return false, err
	}
	if _, ok := s.tables.Shipping[country]; !ok {
		return false, nil
	}
	s.store.GetBasket(username).SetShippingRegion(country)
	return true, nil
}

// GetTotal returns the basket total, optionally including VAT.
func (s *BasketService) GetTotal(username string, includeVAT bool) (decimal.Decimal, error) {
	if err := required("username", username); err != nil {
		return decimal.Zero, err
	}
	snap := s.store.GetBasket(username).Snapshot()
	return Calculate(snap, s.tables, includeVAT), nil
}

// GetBasketItems returns a copy of the basket's lines in first-add order.
func (s *BasketService) GetBasketItems(username string) ([]basket.Item, error) {
	if err := required("username", username); err != nil {
		return nil, err
	}
	return s.store.GetBasket(username).Snapshot().Items, nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &InvalidArgumentError{Argument: name}
	}
	return nil
}
