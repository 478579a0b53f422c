package ecommerce

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// commerceTimeLayout is the local-time format commerce platforms use for dates
const commerceTimeLayout = "2006-01-02T15:04:05"

// DecodeInbound maps a commerce webhook body onto an InboundRecord. The body
// is the resource as the platform renders it; deletes only need the id.
func (c *CommerceClient) DecodeInbound(kind catalog.EntityKind, topic integration.InboundTopic, body []byte) (*integration.InboundRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", integration.ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(body)

	rec := &integration.InboundRecord{
		Platform:   c.config.Code,
		Kind:       kind,
		Topic:      topic,
		ExternalID: catalog.ExternalID(doc.Get("id").String()),
	}
	if rec.ExternalID == "0" {
		rec.ExternalID = ""
	}

	if topic != integration.InboundDeleted {
		if err := decodeCommerceResource(rec, doc); err != nil {
			return nil, err
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeCommerceResource(rec *integration.InboundRecord, doc gjson.Result) error {
	switch rec.Kind {
	case catalog.KindProduct:
		rec.NaturalKey = doc.Get("sku").String()
		rec.Name = doc.Get("name").String()
		rec.Published = publishedFlag(doc.Get("status"))
		detail := catalog.ProductDetail{
			Description:      doc.Get("description").String(),
			ShortDescription: doc.Get("short_description").String(),
			Price:            decimalOf(doc.Get("regular_price")),
		}
		if sale := doc.Get("sale_price"); sale.String() != "" {
			p := decimalOf(sale)
			detail.SalePrice = &p
		}
		if qty := doc.Get("stock_quantity"); qty.Exists() && qty.Type == gjson.Number {
			n := int(qty.Int())
			detail.StockQuantity = &n
		}
		rec.Detail = detail
		rec.TermRefs = append(termRefs(doc.Get("categories"), catalog.TaxonomyCategory),
			termRefs(doc.Get("tags"), catalog.TaxonomyTag)...)
	case catalog.KindTerm:
		taxonomy := catalog.Taxonomy(doc.Get("taxonomy").String())
		if taxonomy == "" {
			taxonomy = catalog.TaxonomyCategory
		}
		slug := doc.Get("slug").String()
		rec.NaturalKey = catalog.TermKey(taxonomy, slug)
		rec.Name = doc.Get("name").String()
		rec.Detail = catalog.TermDetail{
			Taxonomy:    taxonomy,
			Slug:        slug,
			Description: doc.Get("description").String(),
		}
	case catalog.KindCustomer:
		first, last := doc.Get("first_name").String(), doc.Get("last_name").String()
		rec.NaturalKey = doc.Get("email").String()
		rec.Name = strings.TrimSpace(first + " " + last)
		if rec.Name == "" {
			rec.Name = rec.NaturalKey
		}
		rec.Detail = catalog.CustomerDetail{
			Email:     rec.NaturalKey,
			FirstName: first,
			LastName:  last,
			Phone:     doc.Get("billing.phone").String(),
		}
	case catalog.KindCoupon:
		rec.NaturalKey = doc.Get("code").String()
		rec.Name = rec.NaturalKey
		detail := catalog.CouponDetail{
			Code:         rec.NaturalKey,
			DiscountType: catalog.DiscountType(doc.Get("discount_type").String()),
			Amount:       decimalOf(doc.Get("amount")),
		}
		if exp := doc.Get("date_expires").String(); exp != "" {
			if t, err := time.Parse(commerceTimeLayout, exp); err == nil {
				detail.ExpiresAt = &t
			}
		}
		if limit := doc.Get("usage_limit"); limit.Type == gjson.Number {
			n := int(limit.Int())
			detail.UsageLimit = &n
		}
		rec.Detail = detail
	case catalog.KindOrder:
		rec.NaturalKey = doc.Get("number").String()
		rec.Name = "Order " + rec.NaturalKey
		detail := catalog.OrderDetail{
			Number:   rec.NaturalKey,
			Status:   doc.Get("status").String(),
			Currency: doc.Get("currency").String(),
			Total:    decimalOf(doc.Get("total")),
		}
		doc.Get("line_items").ForEach(func(_, line gjson.Result) bool {
			detail.Lines = append(detail.Lines, catalog.OrderLine{
				SKU:       line.Get("sku").String(),
				Name:      line.Get("name").String(),
				Quantity:  int(line.Get("quantity").Int()),
				UnitPrice: decimalOf(line.Get("price")),
			})
			return true
		})
		rec.Detail = detail
	default:
		return fmt.Errorf("%w: %s", integration.ErrUnsupportedKind, rec.Kind)
	}
	return nil
}

func termRefs(list gjson.Result, taxonomy catalog.Taxonomy) []integration.InboundTermRef {
	var refs []integration.InboundTermRef
	list.ForEach(func(_, item gjson.Result) bool {
		if id := item.Get("id").String(); id != "" && id != "0" {
			refs = append(refs, integration.InboundTermRef{Taxonomy: taxonomy, ExternalID: catalog.ExternalID(id)})
		}
		return true
	})
	return refs
}

func publishedFlag(status gjson.Result) *bool {
	if !status.Exists() {
		return nil
	}
	published := status.String() == "publish"
	return &published
}

// decimalOf reads a money value rendered as string or number; bad input is zero
func decimalOf(v gjson.Result) decimal.Decimal {
	if v.String() == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ integration.InboundDecoder = (*CommerceClient)(nil)
