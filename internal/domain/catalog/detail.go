package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Detail is the kind-specific part of a canonical entity. Exactly one variant
// exists per EntityKind.
type Detail interface {
	Kind() EntityKind
	// References returns the ids of canonical entities this entity depends on
	References() []uuid.UUID
}

// Taxonomy is the vocabulary a term belongs to
type Taxonomy string

const (
	TaxonomyCategory  Taxonomy = "category"
	TaxonomyTag       Taxonomy = "tag"
	TaxonomyAuthor    Taxonomy = "author"
	TaxonomyPublisher Taxonomy = "publisher"
	TaxonomyImprint   Taxonomy = "imprint"
)

// IsValid returns true if the taxonomy is known
func (t Taxonomy) IsValid() bool {
	switch t {
	case TaxonomyCategory, TaxonomyTag, TaxonomyAuthor, TaxonomyPublisher, TaxonomyImprint:
		return true
	default:
		return false
	}
}

// ProductDetail describes a sellable item. The product natural key is its SKU/ISBN.
type ProductDetail struct {
	Description      string           `json:"description,omitempty"`
	ShortDescription string           `json:"short_description,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	SalePrice        *decimal.Decimal `json:"sale_price,omitempty"`
	StockQuantity    *int             `json:"stock_quantity,omitempty"`
	TermIDs          []uuid.UUID      `json:"term_ids,omitempty"`
}

func (ProductDetail) Kind() EntityKind { return KindProduct }

func (d ProductDetail) References() []uuid.UUID { return dedupIDs(d.TermIDs) }

// TermDetail describes a taxonomy term (category, tag, author, publisher, imprint)
type TermDetail struct {
	Taxonomy    Taxonomy   `json:"taxonomy"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
}

func (TermDetail) Kind() EntityKind { return KindTerm }

// TermKey builds the natural key of a term: slugs are only unique per taxonomy
func TermKey(taxonomy Taxonomy, slug string) string {
	return string(taxonomy) + "/" + slug
}

// References returns the parent term, if any
func (d TermDetail) References() []uuid.UUID {
	if d.ParentID == nil {
		return nil
	}
	return []uuid.UUID{*d.ParentID}
}

// CustomerDetail describes a buyer account
type CustomerDetail struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (CustomerDetail) Kind() EntityKind { return KindCustomer }

func (CustomerDetail) References() []uuid.UUID { return nil }

// DiscountType is how a coupon amount is applied
type DiscountType string

const (
	DiscountPercent      DiscountType = "percent"
	DiscountFixedCart    DiscountType = "fixed_cart"
	DiscountFixedProduct DiscountType = "fixed_product"
)

// CouponDetail describes a discount code
type CouponDetail struct {
	Code         string          `json:"code"`
	DiscountType DiscountType    `json:"discount_type"`
	Amount       decimal.Decimal `json:"amount"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	UsageLimit   *int            `json:"usage_limit,omitempty"`
}

func (CouponDetail) Kind() EntityKind { return KindCoupon }

func (CouponDetail) References() []uuid.UUID { return nil }

// OrderLine is one line of an order
type OrderLine struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderDetail describes a customer order
type OrderDetail struct {
	Number     string          `json:"number"`
	Status     string          `json:"status"`
	Currency   string          `json:"currency"`
	Total      decimal.Decimal `json:"total"`
	CustomerID *uuid.UUID      `json:"customer_id,omitempty"`
	Lines      []OrderLine     `json:"lines,omitempty"`
}

func (OrderDetail) Kind() EntityKind { return KindOrder }

func (d OrderDetail) References() []uuid.UUID {
	if d.CustomerID == nil {
		return nil
	}
	return []uuid.UUID{*d.CustomerID}
}

// MarshalDetail encodes a detail variant for storage
func MarshalDetail(d Detail) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// UnmarshalDetail decodes the detail variant for kind
func UnmarshalDetail(kind EntityKind, data []byte) (Detail, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var (
		d   Detail
		err error
	)
	switch kind {
	case KindProduct:
		var v ProductDetail
		err = json.Unmarshal(data, &v)
		d = v
	case KindTerm:
		var v TermDetail
		err = json.Unmarshal(data, &v)
		d = v
	case KindCustomer:
		var v CustomerDetail
		err = json.Unmarshal(data, &v)
		d = v
	case KindCoupon:
		var v CouponDetail
		err = json.Unmarshal(data, &v)
		d = v
	case KindOrder:
		var v OrderDetail
		err = json.Unmarshal(data, &v)
		d = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: decode %s detail: %w", kind, err)
	}
	return d, nil
}

func dedupIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SplitTermKey reverses TermKey
func SplitTermKey(key string) (Taxonomy, string, bool) {
	tax, slug, ok := strings.Cut(key, "/")
	if !ok || !Taxonomy(tax).IsValid() {
		return "", key, false
	}
	return Taxonomy(tax), slug, true
}
