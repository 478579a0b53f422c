package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/tidwall/gjson"
)

// maxResponseSize is the maximum allowed response size from a platform (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxErrorDetail is how much of an error body is kept on a PlatformError
const maxErrorDetail = 512

// CommerceClient talks to a REST commerce platform with basic auth. Each
// method makes exactly one HTTP call; the caller applies rate limiting and retry.
type CommerceClient struct {
	config     *CommerceConfig
	httpClient *http.Client
}

// NewCommerceClient creates a client for one commerce platform
func NewCommerceClient(config *CommerceConfig, httpClient *http.Client) (*CommerceClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &CommerceClient{config: config, httpClient: httpClient}, nil
}

// Code returns the platform code
func (c *CommerceClient) Code() integration.PlatformCode {
	return c.config.Code
}

// Kind returns PlatformKindCommerce
func (c *CommerceClient) Kind() integration.PlatformKind {
	return integration.PlatformKindCommerce
}

// Supports reports whether the platform is configured for kind
func (c *CommerceClient) Supports(kind catalog.EntityKind) bool {
	if len(c.config.EntityKinds) == 0 {
		return kind.IsValid()
	}
	return slices.Contains(c.config.EntityKinds, kind)
}

// Find searches a collection by natural key and returns the id of the exact match
func (c *CommerceClient) Find(ctx context.Context, lookup integration.Lookup) (catalog.ExternalID, bool, error) {
	collection, err := collectionPath(lookup)
	if err != nil {
		return "", false, err
	}
	param, field := searchField(lookup.Kind)

	query := url.Values{}
	query.Set(param, lookup.Key)
	query.Set("per_page", "20")

	body, err := c.do(ctx, "find", http.MethodGet, collection+"?"+query.Encode(), nil)
	if err != nil {
		return "", false, err
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return "", false, fmt.Errorf("%w: %s find: expected a list", integration.ErrPlatformInvalidResponse, c.config.Code)
	}

	normalize := catalog.NormalizeNaturalKey
	if lookup.Kind == catalog.KindProduct {
		normalize = catalog.NormalizeISBN
	}

	var found catalog.ExternalID
	result.ForEach(func(_, item gjson.Result) bool {
		if normalize(item.Get(field).String()) != normalize(lookup.Key) {
			return true
		}
		found = catalog.ExternalID(item.Get("id").String())
		return false
	})
	if found.IsZero() {
		return "", false, nil
	}
	return found, true, nil
}

// Create posts the payload and returns the id the platform assigned
func (c *CommerceClient) Create(ctx context.Context, lookup integration.Lookup, payload integration.Payload) (catalog.ExternalID, error) {
	collection, err := c.checkPayload(lookup, payload)
	if err != nil {
		return "", err
	}

	body, err := c.do(ctx, "create", http.MethodPost, collection, payload)
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "id")
	if !id.Exists() || id.String() == "" || id.String() == "0" {
		return "", fmt.Errorf("%w: %s create: response has no id", integration.ErrPlatformInvalidResponse, c.config.Code)
	}
	return catalog.ExternalID(id.String()), nil
}

// Update replaces the remote resource
func (c *CommerceClient) Update(ctx context.Context, lookup integration.Lookup, id catalog.ExternalID, payload integration.Payload) error {
	collection, err := c.checkPayload(lookup, payload)
	if err != nil {
		return err
	}
	if id.IsZero() {
		return integration.ErrMissingExternalID
	}

	_, err = c.do(ctx, "update", http.MethodPut, collection+"/"+url.PathEscape(id.String()), payload)
	return err
}

// Delete removes the remote resource permanently; a missing resource is success
func (c *CommerceClient) Delete(ctx context.Context, lookup integration.Lookup, id catalog.ExternalID) error {
	collection, err := collectionPath(lookup)
	if err != nil {
		return err
	}
	if id.IsZero() {
		return integration.ErrMissingExternalID
	}

	_, err = c.do(ctx, "delete", http.MethodDelete, collection+"/"+url.PathEscape(id.String())+"?force=true", nil)
	if integration.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *CommerceClient) checkPayload(lookup integration.Lookup, payload integration.Payload) (string, error) {
	if payload == nil || payload.PayloadKind() != lookup.Kind {
		return "", fmt.Errorf("%w: %T for %s", integration.ErrUnsupportedKind, payload, lookup.Kind)
	}
	if term, ok := payload.(integration.CommerceTerm); ok && term.Taxonomy != string(lookup.Taxonomy) {
		return "", fmt.Errorf("%w: term taxonomy %q does not match lookup %q",
			integration.ErrUnsupportedKind, term.Taxonomy, lookup.Taxonomy)
	}
	return collectionPath(lookup)
}

// do sends one request and returns the body of a 2xx response
func (c *CommerceClient) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("commerce: failed to encode %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("commerce: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s: %w", integration.ErrPlatformUnavailable, c.config.Code, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: read body: %w", integration.ErrPlatformUnavailable, c.config.Code, op, err)
	}

	if resp.StatusCode >= 400 {
		return nil, newPlatformError(c.config.Code, op, resp.StatusCode, body)
	}
	return body, nil
}

// newPlatformError extracts the platform's code and message from an error body
func newPlatformError(platform integration.PlatformCode, op string, status int, body []byte) *integration.PlatformError {
	pe := &integration.PlatformError{
		Platform:   platform,
		Operation:  op,
		StatusCode: status,
	}
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		pe.Code = parsed.Get("code").String()
		pe.Message = parsed.Get("message").String()
	}
	detail := string(body)
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}
	pe.Detail = detail
	return pe
}

// collectionPath returns the REST collection of an entity kind
func collectionPath(lookup integration.Lookup) (string, error) {
	switch lookup.Kind {
	case catalog.KindProduct:
		return "/products", nil
	case catalog.KindTerm:
		switch lookup.Taxonomy {
		case catalog.TaxonomyCategory:
			return "/products/categories", nil
		case catalog.TaxonomyTag:
			return "/products/tags", nil
		case catalog.TaxonomyAuthor, catalog.TaxonomyPublisher, catalog.TaxonomyImprint:
			return "/products/" + string(lookup.Taxonomy) + "s", nil
		default:
			return "", fmt.Errorf("%w: taxonomy %q", integration.ErrUnsupportedKind, lookup.Taxonomy)
		}
	case catalog.KindCustomer:
		return "/customers", nil
	case catalog.KindCoupon:
		return "/coupons", nil
	case catalog.KindOrder:
		return "/orders", nil
	default:
		return "", fmt.Errorf("%w: %s", integration.ErrUnsupportedKind, lookup.Kind)
	}
}

// searchField returns the query parameter and the response field that hold the natural key
func searchField(kind catalog.EntityKind) (param, field string) {
	switch kind {
	case catalog.KindProduct:
		return "sku", "sku"
	case catalog.KindTerm:
		return "slug", "slug"
	case catalog.KindCustomer:
		return "email", "email"
	case catalog.KindCoupon:
		return "code", "code"
	default:
		return "search", "number"
	}
}

var _ integration.PlatformClient = (*CommerceClient)(nil)
