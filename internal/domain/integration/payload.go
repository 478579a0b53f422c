package integration

import (
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/google/uuid"
)

// Lookup is how a remote resource is found by natural key on a platform
type Lookup struct {
	Kind     catalog.EntityKind
	Taxonomy catalog.Taxonomy // terms only
	Key      string
}

// LookupOf returns the natural-key lookup of an entity. Terms are looked up by
// the taxonomy and slug of their detail.
func LookupOf(e *catalog.Entity) Lookup {
	if d, ok := e.Detail.(catalog.TermDetail); ok && d.Taxonomy.IsValid() && d.Slug != "" {
		return Lookup{Kind: e.Kind, Taxonomy: d.Taxonomy, Key: d.Slug}
	}
	return lookupFor(e.Kind, e.NaturalKey)
}

// LookupOfTombstone returns the lookup of a deleted entity
func LookupOfTombstone(t *catalog.Tombstone) Lookup {
	return lookupFor(t.Kind, t.NaturalKey)
}

func lookupFor(kind catalog.EntityKind, naturalKey string) Lookup {
	l := Lookup{Kind: kind, Key: naturalKey}
	if kind == catalog.KindTerm {
		if tax, slug, ok := catalog.SplitTermKey(naturalKey); ok {
			l.Taxonomy = tax
			l.Key = slug
		}
	}
	return l
}

// CacheKey returns the lookup cache key of l on platform
func (l Lookup) CacheKey(platform PlatformCode) string {
	return strings.Join([]string{string(platform), string(l.Kind), string(l.Taxonomy), l.Key}, "|")
}

// ResolvedRef is a referenced entity whose remote id on the target platform is known
type ResolvedRef struct {
	Kind       catalog.EntityKind
	Taxonomy   catalog.Taxonomy
	Name       string
	ExternalID catalog.ExternalID
}

// ResolvedRefs maps canonical ids of referenced entities to their remote ids.
// References missing from the map are omitted from payloads.
type ResolvedRefs map[uuid.UUID]ResolvedRef

// Payload is the body sent to a platform for one entity. Each variant is built
// by a pure function of the entity and its resolved references.
type Payload interface {
	PayloadKind() catalog.EntityKind
}

// CommerceProduct is the product body of a commerce platform
type CommerceProduct struct {
	Name             string              `json:"name"`
	SKU              string              `json:"sku"`
	Status           string              `json:"status"`
	RegularPrice     string              `json:"regular_price"`
	SalePrice        string              `json:"sale_price,omitempty"`
	Description      string              `json:"description,omitempty"`
	ShortDescription string              `json:"short_description,omitempty"`
	ManageStock      bool                `json:"manage_stock"`
	StockQuantity    *int                `json:"stock_quantity,omitempty"`
	Terms            map[string][]string `json:"terms,omitempty"`
}

func (CommerceProduct) PayloadKind() catalog.EntityKind { return catalog.KindProduct }

// CommerceTerm is the taxonomy term body of a commerce platform
type CommerceTerm struct {
	Taxonomy    string `json:"-"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Parent      string `json:"parent,omitempty"`
}

func (CommerceTerm) PayloadKind() catalog.EntityKind { return catalog.KindTerm }

// CommerceCustomer is the customer body of a commerce platform
type CommerceCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (CommerceCustomer) PayloadKind() catalog.EntityKind { return catalog.KindCustomer }

// CommerceCoupon is the coupon body of a commerce platform
type CommerceCoupon struct {
	Code         string `json:"code"`
	DiscountType string `json:"discount_type"`
	Amount       string `json:"amount"`
	DateExpires  string `json:"date_expires,omitempty"`
	UsageLimit   *int   `json:"usage_limit,omitempty"`
}

func (CommerceCoupon) PayloadKind() catalog.EntityKind { return catalog.KindCoupon }

// CommerceOrderLine is one line item of a commerce order
type CommerceOrderLine struct {
	ProductID string `json:"product_id,omitempty"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// CommerceOrder is the order body of a commerce platform
type CommerceOrder struct {
	Number     string              `json:"number"`
	Status     string              `json:"status"`
	Currency   string              `json:"currency"`
	Total      string              `json:"total"`
	CustomerID string              `json:"customer_id,omitempty"`
	LineItems  []CommerceOrderLine `json:"line_items"`
}

func (CommerceOrder) PayloadKind() catalog.EntityKind { return catalog.KindOrder }

// NotesPage is a page in a notes database
type NotesPage struct {
	Kind       catalog.EntityKind
	Title      string
	NaturalKey string
	Status     string
	Properties map[string]string // rendered as rich text properties
	Body       string
}

func (p NotesPage) PayloadKind() catalog.EntityKind { return p.Kind }

// BuildPayload builds the payload variant for a platform kind
func BuildPayload(kind PlatformKind, e *catalog.Entity, refs ResolvedRefs) (Payload, error) {
	switch kind {
	case PlatformKindCommerce:
		return BuildCommercePayload(e, refs)
	case PlatformKindNotes:
		return BuildNotesPayload(e, refs)
	default:
		return nil, fmt.Errorf("%w: platform kind %q", ErrPlatformNotConfigured, kind)
	}
}

// BuildCommercePayload maps an entity onto its commerce variant
func BuildCommercePayload(e *catalog.Entity, refs ResolvedRefs) (Payload, error) {
	switch d := e.Detail.(type) {
	case catalog.ProductDetail:
		p := CommerceProduct{
			Name:             e.Name,
			SKU:              e.NaturalKey,
			Status:           commerceStatus(e),
			RegularPrice:     d.Price.StringFixed(2),
			Description:      d.Description,
			ShortDescription: d.ShortDescription,
			StockQuantity:    d.StockQuantity,
			ManageStock:      d.StockQuantity != nil,
		}
		if d.SalePrice != nil {
			p.SalePrice = d.SalePrice.StringFixed(2)
		}
		for _, id := range d.References() {
			ref, ok := refs[id]
			if !ok || ref.Kind != catalog.KindTerm {
				continue
			}
			if p.Terms == nil {
				p.Terms = make(map[string][]string)
			}
			p.Terms[string(ref.Taxonomy)] = append(p.Terms[string(ref.Taxonomy)], ref.ExternalID.String())
		}
		return p, nil
	case catalog.TermDetail:
		t := CommerceTerm{
			Taxonomy:    string(d.Taxonomy),
			Name:        e.Name,
			Slug:        d.Slug,
			Description: d.Description,
		}
		if d.ParentID != nil {
			if ref, ok := refs[*d.ParentID]; ok {
				t.Parent = ref.ExternalID.String()
			}
		}
		return t, nil
	case catalog.CustomerDetail:
		return CommerceCustomer{
			Email:     e.NaturalKey,
			FirstName: d.FirstName,
			LastName:  d.LastName,
			Phone:     d.Phone,
		}, nil
	case catalog.CouponDetail:
		c := CommerceCoupon{
			Code:         e.NaturalKey,
			DiscountType: string(d.DiscountType),
			Amount:       d.Amount.StringFixed(2),
			UsageLimit:   d.UsageLimit,
		}
		if d.ExpiresAt != nil {
			c.DateExpires = d.ExpiresAt.UTC().Format("2006-01-02T15:04:05")
		}
		return c, nil
	case catalog.OrderDetail:
		o := CommerceOrder{
			Number:    e.NaturalKey,
			Status:    d.Status,
			Currency:  d.Currency,
			Total:     d.Total.StringFixed(2),
			LineItems: make([]CommerceOrderLine, 0, len(d.Lines)),
		}
		if d.CustomerID != nil {
			if ref, ok := refs[*d.CustomerID]; ok {
				o.CustomerID = ref.ExternalID.String()
			}
		}
		for _, l := range d.Lines {
			line := CommerceOrderLine{
				SKU:      l.SKU,
				Name:     l.Name,
				Quantity: l.Quantity,
				Price:    l.UnitPrice.StringFixed(2),
			}
			if l.ProductID != nil {
				if ref, ok := refs[*l.ProductID]; ok {
					line.ProductID = ref.ExternalID.String()
				}
			}
			o.LineItems = append(o.LineItems, line)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKind, e.Detail)
	}
}

// BuildNotesPayload maps an entity onto a notes page
func BuildNotesPayload(e *catalog.Entity, refs ResolvedRefs) (Payload, error) {
	page := NotesPage{
		Kind:       e.Kind,
		Title:      e.Name,
		NaturalKey: e.NaturalKey,
		Status:     string(e.State),
		Properties: map[string]string{},
	}
	switch d := e.Detail.(type) {
	case catalog.ProductDetail:
		page.Properties["Price"] = d.Price.StringFixed(2)
		page.Body = d.Description
		names := make([]string, 0, len(d.TermIDs))
		for _, id := range d.References() {
			if ref, ok := refs[id]; ok && ref.Name != "" {
				names = append(names, ref.Name)
			}
		}
		if len(names) > 0 {
			page.Properties["Terms"] = strings.Join(names, ", ")
		}
	case catalog.TermDetail:
		page.Properties["Taxonomy"] = string(d.Taxonomy)
		page.Properties["Slug"] = d.Slug
		page.Body = d.Description
	default:
		return nil, fmt.Errorf("%w: %s on notes", ErrUnsupportedKind, e.Kind)
	}
	return page, nil
}

func commerceStatus(e *catalog.Entity) string {
	if e.IsPublished() {
		return "publish"
	}
	return "draft"
}
