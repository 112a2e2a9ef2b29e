// Package transform maps raw upstream records onto the normalized schema and
// the mirror document that is stored alongside.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mrlokans/storesync/internal/entities"
)

const (
	DefaultEmail    = "unknown@placeholder.invalid"
	DefaultCurrency = "USD"
	DefaultStatus   = "UNKNOWN"
)

// Record pairs the normalized row with the mirror document for one item.
type Record struct {
	Normalized entities.NormalizedRecord
	Mirror     *entities.MirrorDocument
}

func (r *Record) ExternalID() string {
	return r.Mirror.ExternalID
}

// Func is the signature of Transform, injected where tests need a stand-in.
type Func func(rt entities.ResourceType, raw json.RawMessage) (*Record, error)

// TransformError reports an item that could not be mapped. It never fails
// the batch by itself.
type TransformError struct {
	ResourceType entities.ResourceType
	GlobalID     string
	Reason       string
	Err          error
}

func (e *TransformError) Error() string {
	msg := fmt.Sprintf("transform %s", e.ResourceType)
	if e.GlobalID != "" {
		msg += " " + e.GlobalID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Transform maps one raw record. It has no side effects.
func Transform(rt entities.ResourceType, raw json.RawMessage) (*Record, error) {
	switch rt {
	case entities.ResourceOrders:
		return transformOrder(raw)
	case entities.ResourceProducts:
		return transformProduct(raw)
	}
	return nil, &TransformError{ResourceType: rt, Reason: "unknown resource type"}
}

// Outcome is the result of transforming one item of a batch, in batch order.
type Outcome struct {
	Record *Record
	Err    error
}

// All transforms every item of a batch with fn.
func All(fn Func, rt entities.ResourceType, items []json.RawMessage) []Outcome {
	outcomes := make([]Outcome, len(items))
	for i, raw := range items {
		rec, err := fn(rt, raw)
		outcomes[i] = Outcome{Record: rec, Err: err}
	}
	return outcomes
}

type money struct {
	ShopMoney *struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"shopMoney"`
}

func (m *money) amount() (float64, string) {
	if m == nil || m.ShopMoney == nil {
		return 0, ""
	}
	v, err := strconv.ParseFloat(m.ShopMoney.Amount, 64)
	if err != nil {
		v = 0
	}
	return v, m.ShopMoney.CurrencyCode
}

type rawOrder struct {
	ID                        string  `json:"id"`
	Name                      string  `json:"name"`
	Email                     *string `json:"email"`
	CurrencyCode              string  `json:"currencyCode"`
	DisplayFinancialStatus    *string `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus  *string `json:"displayFulfillmentStatus"`
	ProcessedAt               string  `json:"processedAt"`
	CreatedAt                 string  `json:"createdAt"`
	UpdatedAt                 string  `json:"updatedAt"`
	SubtotalLineItemsQuantity int     `json:"subtotalLineItemsQuantity"`
	TotalPriceSet             *money  `json:"totalPriceSet"`
	SubtotalPriceSet          *money  `json:"subtotalPriceSet"`
}

func transformOrder(raw json.RawMessage) (*Record, error) {
	var o rawOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, &TransformError{ResourceType: entities.ResourceOrders, Reason: "invalid JSON", Err: err}
	}
	id, err := ParseGlobalID(o.ID)
	if err != nil {
		return nil, &TransformError{ResourceType: entities.ResourceOrders, GlobalID: o.ID, Reason: "invalid id", Err: err}
	}

	total, totalCurrency := o.TotalPriceSet.amount()
	subtotal, _ := o.SubtotalPriceSet.amount()

	order := &entities.Order{
		ExternalID:        id,
		Name:              o.Name,
		Email:             orDefault(o.Email, DefaultEmail),
		Currency:          firstNonEmpty(o.CurrencyCode, totalCurrency, DefaultCurrency),
		TotalPrice:        total,
		SubtotalPrice:     subtotal,
		FinancialStatus:   orDefault(o.DisplayFinancialStatus, DefaultStatus),
		FulfillmentStatus: orDefault(o.DisplayFulfillmentStatus, DefaultStatus),
		LineItemCount:     o.SubtotalLineItemsQuantity,
		ProcessedAt:       parseTime(o.ProcessedAt),
		CreatedAt:         parseTime(o.CreatedAt),
		UpdatedAt:         parseTime(o.UpdatedAt),
	}

	return &Record{Normalized: order, Mirror: mirrorDocument(entities.ResourceOrders, id, o.ID, raw)}, nil
}

type rawProduct struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Handle         string  `json:"handle"`
	Vendor         string  `json:"vendor"`
	ProductType    string  `json:"productType"`
	Status         *string `json:"status"`
	TotalInventory int     `json:"totalInventory"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
	PriceRange     *struct {
		MinVariantPrice *struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"minVariantPrice"`
	} `json:"priceRangeV2"`
}

func transformProduct(raw json.RawMessage) (*Record, error) {
	var p rawProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &TransformError{ResourceType: entities.ResourceProducts, Reason: "invalid JSON", Err: err}
	}
	id, err := ParseGlobalID(p.ID)
	if err != nil {
		return nil, &TransformError{ResourceType: entities.ResourceProducts, GlobalID: p.ID, Reason: "invalid id", Err: err}
	}

	var price float64
	currency := DefaultCurrency
	if p.PriceRange != nil && p.PriceRange.MinVariantPrice != nil {
		if v, err := strconv.ParseFloat(p.PriceRange.MinVariantPrice.Amount, 64); err == nil {
			price = v
		}
		currency = firstNonEmpty(p.PriceRange.MinVariantPrice.CurrencyCode, DefaultCurrency)
	}

	product := &entities.Product{
		ExternalID:     id,
		Title:          p.Title,
		Handle:         p.Handle,
		Vendor:         p.Vendor,
		ProductType:    p.ProductType,
		Status:         orDefault(p.Status, DefaultStatus),
		MinPrice:       price,
		Currency:       currency,
		TotalInventory: p.TotalInventory,
		CreatedAt:      parseTime(p.CreatedAt),
		UpdatedAt:      parseTime(p.UpdatedAt),
	}

	return &Record{Normalized: product, Mirror: mirrorDocument(entities.ResourceProducts, id, p.ID, raw)}, nil
}

// ParseGlobalID extracts the numeric id from "gid://shopify/Order/123".
// A bare numeric id is accepted as is.
func ParseGlobalID(gid string) (string, error) {
	if gid == "" {
		return "", fmt.Errorf("missing id")
	}
	id := gid
	if strings.HasPrefix(gid, "gid://") {
		idx := strings.LastIndex(gid, "/")
		id = gid[idx+1:]
		if q := strings.IndexByte(id, '?'); q >= 0 {
			id = id[:q]
		}
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", fmt.Errorf("id %q is not numeric", gid)
	}
	return id, nil
}

func mirrorDocument(rt entities.ResourceType, id, gid string, raw json.RawMessage) *entities.MirrorDocument {
	var buf bytes.Buffer
	payload := string(raw)
	if err := json.Compact(&buf, raw); err == nil {
		payload = buf.String()
	}
	return &entities.MirrorDocument{
		ResourceType: rt,
		ExternalID:   id,
		GlobalID:     gid,
		Payload:      payload,
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
