package handler

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/shopping-basket/internal/domain/pricing"
	"github.com/xenking/shopping-basket/pkg/httpmiddleware"
)

// Handler serves the basket HTTP API, delegating to a pricing.Service.
type Handler struct {
	basket   pricing.Service
	validate *validator.Validate

	itemsAdded       metric.Int64Counter
	itemsRemoved     metric.Int64Counter
	discountApplied  metric.Int64Counter
	discountRejected metric.Int64Counter
	shippingRejected metric.Int64Counter
}

// NewHandler constructs a Handler and registers its counters on meter.
func NewHandler(svc pricing.Service, meter metric.Meter) (*Handler, error) {
	validate, err := newValidator()
	if err != nil {
		return nil, errors.Wrap(err, "create validator")
	}
	h := &Handler{
		basket:   svc,
		validate: validate,
	}

	counters := []struct {
		name string
		desc string
		dst  *metric.Int64Counter
	}{
		{"basket.items.added", "Item lines added to baskets", &h.itemsAdded},
		{"basket.items.removed", "Item lines removed from baskets", &h.itemsRemoved},
		{"basket.discount.applied", "Discount codes applied", &h.discountApplied},
		{"basket.discount.rejected", "Discount codes rejected", &h.discountRejected},
		{"basket.shipping.rejected", "Shipping countries rejected", &h.shippingRejected},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, errors.Wrapf(err, "create counter %s", c.name)
		}
		*c.dst = counter
	}

	return h, nil
}

// Routes mounts the basket API under /api/basket behind auth.
func (h *Handler) Routes(auth *Authenticator) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/basket", func(r chi.Router) {
		r.Use(auth.Middleware())

		r.Post("/items", h.AddItems)
		r.Get("/items", h.GetBasketItems)
		r.Delete("/items/{productId}", h.RemoveItem)
		r.Get("/total", h.GetTotal)
		r.Post("/discount-code", h.ApplyDiscountCode)
		r.Post("/shipping", h.SetShippingCountry)
	})

	return r
}

// newValidator returns a validator that reports JSON field names and checks
// decimal.Decimal fields as float64 so the numeric range tags apply to prices.
func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, err
	}
	return v, nil
}
