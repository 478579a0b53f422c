package notes

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
	"sort"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/tidwall/gjson"
)

// Page property names of the notes database
const (
	PropertyTitle  = "Name"
	PropertyKey    = "Key"
	PropertyKind   = "Kind"
	PropertyStatus = "Status"
)

const (
	maxResponseSize = 10 * 1024 * 1024
	maxErrorDetail  = 512
	// maxTextLength is the longest rich text segment the API accepts
	maxTextLength = 2000
)

// Client talks to a Notion-style notes database with a bearer token. Each
// entity is one page; its natural key is kept in a rich text property.
type Client struct {
	config     *NotesConfig
	httpClient *http.Client
}

// NewClient creates a client for one notes database
func NewClient(config *NotesConfig, httpClient *http.Client) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	return &Client{config: config, httpClient: httpClient}, nil
}

// Code returns the platform code
func (c *Client) Code() integration.PlatformCode {
	return c.config.Code
}

// Kind returns PlatformKindNotes
func (c *Client) Kind() integration.PlatformKind {
	return integration.PlatformKindNotes
}

// Supports reports whether the database is configured for kind
func (c *Client) Supports(kind catalog.EntityKind) bool {
	return slices.Contains(c.config.EntityKinds, kind)
}

// Find queries the database for the page whose key property matches the lookup
func (c *Client) Find(ctx context.Context, lookup integration.Lookup) (catalog.ExternalID, bool, error) {
	key := naturalKey(lookup)
	query := map[string]any{
		"filter": map[string]any{
			"and": []any{
				map[string]any{"property": PropertyKind, "select": map[string]any{"equals": kindOption(lookup.Kind)}},
				map[string]any{"property": PropertyKey, "rich_text": map[string]any{"equals": key}},
			},
		},
		"page_size": 10,
	}

	body, err := c.do(ctx, "find", http.MethodPost, "/v1/databases/"+url.PathEscape(c.config.DatabaseID)+"/query", query)
	if err != nil {
		return "", false, err
	}

	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return "", false, fmt.Errorf("%w: %s find: expected results", integration.ErrPlatformInvalidResponse, c.config.Code)
	}

	want := catalog.NormalizeNaturalKey(key)
	var found catalog.ExternalID
	results.ForEach(func(_, page gjson.Result) bool {
		if page.Get("archived").Bool() {
			return true
		}
		if catalog.NormalizeNaturalKey(plainText(page.Get("properties."+PropertyKey))) != want {
			return true
		}
		found = catalog.ExternalID(page.Get("id").String())
		return false
	})
	if found.IsZero() {
		return "", false, nil
	}
	return found, true, nil
}

// Create adds a page to the database
func (c *Client) Create(ctx context.Context, lookup integration.Lookup, payload integration.Payload) (catalog.ExternalID, error) {
	page, err := checkPayload(lookup, payload)
	if err != nil {
		return "", err
	}

	req := map[string]any{
		"parent":     map[string]any{"database_id": c.config.DatabaseID},
		"properties": pageProperties(page),
	}
	if page.Body != "" {
		req["children"] = []any{paragraph(page.Body)}
	}

	body, err := c.do(ctx, "create", http.MethodPost, "/v1/pages", req)
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("%w: %s create: response has no id", integration.ErrPlatformInvalidResponse, c.config.Code)
	}
	return catalog.ExternalID(id), nil
}

// Update patches the page properties. Archived pages are restored.
func (c *Client) Update(ctx context.Context, lookup integration.Lookup, id catalog.ExternalID, payload integration.Payload) error {
	page, err := checkPayload(lookup, payload)
	if err != nil {
		return err
	}
	if id.IsZero() {
		return integration.ErrMissingExternalID
	}

	req := map[string]any{
		"archived":   false,
		"properties": pageProperties(page),
	}
	_, err = c.do(ctx, "update", http.MethodPatch, "/v1/pages/"+url.PathEscape(id.String()), req)
	return err
}

// Delete archives the page; a missing page is success
func (c *Client) Delete(ctx context.Context, _ integration.Lookup, id catalog.ExternalID) error {
	if id.IsZero() {
		return integration.ErrMissingExternalID
	}
	_, err := c.do(ctx, "delete", http.MethodPatch, "/v1/pages/"+url.PathEscape(id.String()), map[string]any{"archived": true})
	if integration.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notes: failed to encode %s body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("notes: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Notion-Version", c.config.APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

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

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &integration.PlatformError{
			Platform:   c.config.Code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Code:       gjson.GetBytes(body, "code").String(),
			Message:    gjson.GetBytes(body, "message").String(),
			Detail:     string(body),
		}
		if len(pe.Detail) > maxErrorDetail {
			pe.Detail = pe.Detail[:maxErrorDetail]
		}
		return nil, pe
	}
	return body, nil
}

func checkPayload(lookup integration.Lookup, payload integration.Payload) (integration.NotesPage, error) {
	page, ok := payload.(integration.NotesPage)
	if !ok || page.Kind != lookup.Kind {
		return integration.NotesPage{}, fmt.Errorf("%w: %T for %s on notes", integration.ErrUnsupportedKind, payload, lookup.Kind)
	}
	return page, nil
}

// naturalKey rebuilds the full natural key of a lookup
func naturalKey(lookup integration.Lookup) string {
	if lookup.Kind == catalog.KindTerm && lookup.Taxonomy != "" {
		return catalog.TermKey(lookup.Taxonomy, lookup.Key)
	}
	return lookup.Key
}

func pageProperties(page integration.NotesPage) map[string]any {
	props := map[string]any{
		PropertyTitle: map[string]any{"title": richText(page.Title)},
		PropertyKey:   map[string]any{"rich_text": richText(page.NaturalKey)},
		PropertyKind:  map[string]any{"select": map[string]any{"name": kindOption(page.Kind)}},
	}
	if page.Status != "" {
		props[PropertyStatus] = map[string]any{"select": map[string]any{"name": page.Status}}
	}

	names := make([]string, 0, len(page.Properties))
	for name := range page.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		props[name] = map[string]any{"rich_text": richText(page.Properties[name])}
	}
	return props
}

func richText(s string) []any {
	if s == "" {
		return []any{}
	}
	r := []rune(s)
	if len(r) > maxTextLength {
		r = r[:maxTextLength]
	}
	return []any{map[string]any{"type": "text", "text": map[string]any{"content": string(r)}}}
}

func paragraph(s string) map[string]any {
	return map[string]any{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": map[string]any{"rich_text": richText(s)},
	}
}

// plainText joins the plain_text segments of a title or rich_text property
func plainText(prop gjson.Result) string {
	segments := prop.Get("title")
	if !segments.Exists() {
		segments = prop.Get("rich_text")
	}
	var out string
	segments.ForEach(func(_, seg gjson.Result) bool {
		text := seg.Get("plain_text")
		if !text.Exists() {
			text = seg.Get("text.content")
		}
		out += text.String()
		return true
	})
	return out
}

var _ integration.PlatformClient = (*Client)(nil)
