package notes

import (
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// DecodeInbound maps a page object delivered by a notes webhook onto an
// InboundRecord. An archived page is reported as a delete.
func (c *Client) DecodeInbound(kind catalog.EntityKind, topic integration.InboundTopic, body []byte) (*integration.InboundRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", integration.ErrInvalidPayload)
	}
	page := gjson.ParseBytes(body)
	if page.Get("archived").Bool() || page.Get("in_trash").Bool() {
		topic = integration.InboundDeleted
	}

	rec := &integration.InboundRecord{
		Platform:   c.config.Code,
		Kind:       kind,
		Topic:      topic,
		ExternalID: catalog.ExternalID(page.Get("id").String()),
	}

	if topic != integration.InboundDeleted {
		props := page.Get("properties")
		if k := props.Get(PropertyKind + ".select.name").String(); k != "" && !strings.EqualFold(k, string(kind)) {
			return nil, fmt.Errorf("%w: page kind %q delivered as %s", integration.ErrInvalidPayload, k, kind)
		}
		rec.NaturalKey = strings.TrimSpace(plainText(props.Get(PropertyKey)))
		rec.Name = strings.TrimSpace(plainText(props.Get(PropertyTitle)))
		if status := props.Get(PropertyStatus + ".select.name"); status.Exists() {
			published := status.String() == string(catalog.StatePublished)
			rec.Published = &published
		}

		switch kind {
		case catalog.KindProduct:
			price, _ := decimal.NewFromString(strings.TrimSpace(plainText(props.Get("Price"))))
			rec.Detail = catalog.ProductDetail{Price: price}
		case catalog.KindTerm:
			taxonomy, slug, ok := catalog.SplitTermKey(rec.NaturalKey)
			if !ok {
				taxonomy = catalog.Taxonomy(plainText(props.Get("Taxonomy")))
				slug = plainText(props.Get("Slug"))
				rec.NaturalKey = catalog.TermKey(taxonomy, slug)
			}
			if !taxonomy.IsValid() || slug == "" {
				return nil, fmt.Errorf("%w: term page without taxonomy and slug", integration.ErrInvalidPayload)
			}
			rec.Detail = catalog.TermDetail{Taxonomy: taxonomy, Slug: slug}
		default:
			return nil, fmt.Errorf("%w: %s on notes", integration.ErrUnsupportedKind, kind)
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

var _ integration.InboundDecoder = (*Client)(nil)

// kindOption is the select option a kind is stored under in the database
func kindOption(kind catalog.EntityKind) string {
	return strings.ToLower(string(kind))
}
