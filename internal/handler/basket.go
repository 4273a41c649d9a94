package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopping-basket/internal/domain/basket"
	"github.com/xenking/shopping-basket/internal/domain/pricing"
	"github.com/xenking/shopping-basket/pkg/httpmiddleware"
)

const maxBodySize = 1 << 20

// addItemRequest is one element of the POST /items body.
type addItemRequest struct {
	ProductID  string          `json:"productId" validate:"notblank,max=100"`
	Price      decimal.Decimal `json:"price" validate:"gte=0.01,lte=999999"`
	Quantity   int             `json:"quantity" validate:"gte=1,lte=1000"`
	Discounted bool            `json:"isDiscounted"`
}

// AddItems handles POST /api/basket/items.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reqs, err := decodeAddItems(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		zctx.From(ctx).Debug("Malformed add items body", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]pricing.ItemRequest, 0, len(reqs))
	for i, req := range reqs {
		if err := h.validate.Struct(req); err != nil {
			httpmiddleware.WriteError(w, http.StatusBadRequest, validationMessage(i, err))
			return
		}
		items = append(items, pricing.ItemRequest{
			ProductID:  req.ProductID,
			Price:      req.Price,
			Quantity:   req.Quantity,
			Discounted: req.Discounted,
		})
	}

	if len(items) == 0 {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "at least one item is required")
		return
	}

	if err := h.basket.AddItems(username(r), items); err != nil {
		h.fail(w, r, err)
		return
	}

	h.itemsAdded.Add(ctx, int64(len(items)))
	w.WriteHeader(http.StatusOK)
}

// RemoveItem handles DELETE /api/basket/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	removed, err := h.basket.RemoveItem(username(r), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !removed {
		httpmiddleware.WriteError(w, http.StatusNotFound, fmt.Sprintf("product %s not found in basket", productID))
		return
	}

	h.itemsRemoved.Add(r.Context(), 1)
	w.WriteHeader(http.StatusOK)
}

// GetTotal handles GET /api/basket/total?includeVat=.
func (h *Handler) GetTotal(w http.ResponseWriter, r *http.Request) {
	includeVAT := true
	if raw := r.URL.Query().Get("includeVat"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpmiddleware.WriteError(w, http.StatusBadRequest, "includeVat must be a boolean")
			return
		}
		includeVAT = v
	}

	total, err := h.basket.GetTotal(username(r), includeVAT)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.Num(jx.Num(total.String()))
	writeJSON(w, e.Bytes())
}

// ApplyDiscountCode handles POST /api/basket/discount-code?code=.
func (h *Handler) ApplyDiscountCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")

	ok, err := h.basket.ApplyDiscountCode(username(r), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.discountRejected.Add(ctx, 1)
		httpmiddleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("discount code %q is invalid or expired", code))
		return
	}

	h.discountApplied.Add(ctx, 1)
	w.WriteHeader(http.StatusOK)
}

// SetShippingCountry handles POST /api/basket/shipping?country=.
func (h *Handler) SetShippingCountry(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")

	ok, err := h.basket.SetShippingCountry(username(r), country)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.shippingRejected.Add(r.Context(), 1)
		httpmiddleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("shipping country %q is not supported", country))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetBasketItems handles GET /api/basket/items.
func (h *Handler) GetBasketItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.basket.GetBasketItems(username(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(items) == 0 {
		httpmiddleware.WriteError(w, http.StatusNotFound, "basket is empty")
		return
	}

	writeJSON(w, encodeItems(items))
}

// fail maps service errors: invalid arguments become 400, anything else 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var argErr *pricing.InvalidArgumentError
	if errors.As(err, &argErr) {
		httpmiddleware.WriteError(w, http.StatusBadRequest, argErr.Error())
		return
	}

	zctx.From(r.Context()).Error("Basket operation failed", zap.Error(err))
	httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
}

func username(r *http.Request) string {
	name, _ := UsernameFromContext(r.Context())
	return name
}

func writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func validationMessage(index int, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Sprintf("items[%d]: invalid", index)
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("items[%d].%s: must satisfy %s=%s", index, fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("items[%d].%s: must satisfy %s", index, fe.Field(), fe.Tag())
}

// decodeAddItems reads a JSON array of items. Field names match
// case-insensitively; quantity defaults to 1; price may be a number or a
// numeric string.
func decodeAddItems(r io.Reader) ([]addItemRequest, error) {
	d := jx.Decode(r, 4096)
	if d.Next() != jx.Array {
		return nil, errors.New("body must be a JSON array")
	}

	var out []addItemRequest
	if err := d.Arr(func(d *jx.Decoder) error {
		req := addItemRequest{Quantity: 1}
		if err := req.decode(d); err != nil {
			return errors.Wrapf(err, "item %d", len(out))
		}
		out = append(out, req)
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (req *addItemRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch strings.ToLower(key) {
		case "productid":
			req.ProductID, err = d.Str()
		case "price":
			req.Price, err = decodeDecimal(d)
		case "quantity":
			req.Quantity, err = d.Int()
		case "isdiscounted":
			req.Discounted, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		return decimal.Zero, errors.New("expected number")
	}
	return decimal.NewFromString(raw)
}

func encodeItems(items []basket.Item) []byte {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("username", func(e *jx.Encoder) { e.Str(it.Username) })
				e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
				e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(it.Price.String())) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("isDiscounted", func(e *jx.Encoder) { e.Bool(it.Discounted) })
				e.Field("totalPrice", func(e *jx.Encoder) { e.Num(jx.Num(it.LineTotal().String())) })
			})
		}
	})
	return e.Bytes()
}
