package integration

import (
	"slices"
	"sort"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
)

// PlatformCode is the configured name of an external platform ("shop", "notes")
type PlatformCode string

// String returns the string representation of PlatformCode
func (c PlatformCode) String() string {
	return string(c)
}

// PlatformKind selects the adapter family used for a platform
type PlatformKind string

const (
	// PlatformKindCommerce is a REST commerce platform with basic auth
	PlatformKindCommerce PlatformKind = "commerce"
	// PlatformKindNotes is a notes database addressed by bearer token
	PlatformKindNotes PlatformKind = "notes"
)

// IsValid returns true if the platform kind is known
func (k PlatformKind) IsValid() bool {
	return k == PlatformKindCommerce || k == PlatformKindNotes
}

// DefaultKinds returns the entity kinds a platform kind accepts when none are configured
func (k PlatformKind) DefaultKinds() []catalog.EntityKind {
	switch k {
	case PlatformKindCommerce:
		return catalog.AllKinds()
	case PlatformKindNotes:
		return []catalog.EntityKind{catalog.KindProduct, catalog.KindTerm}
	default:
		return nil
	}
}

// PlatformConfig holds the settings of one platform. It is built once from
// configuration and shared read-only.
type PlatformConfig struct {
	Code              PlatformCode
	Kind              PlatformKind
	BaseURL           string
	Key               string // consumer key (commerce)
	Secret            string // consumer secret (commerce) or integration token (notes)
	WebhookSecret     string
	DatabaseID        string // notes database id
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	EntityKinds       []catalog.EntityKind
}

// HasCredentials reports whether the credentials the platform kind needs are present
func (c PlatformConfig) HasCredentials() bool {
	switch c.Kind {
	case PlatformKindCommerce:
		return c.Key != "" && c.Secret != ""
	case PlatformKindNotes:
		return c.Secret != "" && c.DatabaseID != ""
	default:
		return false
	}
}

// Eligible reports whether changes may be sent to the platform at all
func (c PlatformConfig) Eligible() bool {
	return c.Enabled && c.BaseURL != "" && c.HasCredentials()
}

// Supports reports whether the platform accepts entities of kind
func (c PlatformConfig) Supports(kind catalog.EntityKind) bool {
	kinds := c.EntityKinds
	if len(kinds) == 0 {
		kinds = c.Kind.DefaultKinds()
	}
	return slices.Contains(kinds, kind)
}

// Platforms is the read-only set of configured platforms
type Platforms struct {
	byCode map[PlatformCode]PlatformConfig
}

// NewPlatforms indexes configs by code; later duplicates replace earlier ones
func NewPlatforms(configs ...PlatformConfig) *Platforms {
	p := &Platforms{byCode: make(map[PlatformCode]PlatformConfig, len(configs))}
	for _, c := range configs {
		p.byCode[c.Code] = c
	}
	return p
}

// Get returns the config of a platform
func (p *Platforms) Get(code PlatformCode) (PlatformConfig, bool) {
	c, ok := p.byCode[code]
	return c, ok
}

// All returns every configured platform sorted by code
func (p *Platforms) All() []PlatformConfig {
	out := make([]PlatformConfig, 0, len(p.byCode))
	for _, c := range p.byCode {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Eligible returns the platforms changes may be sent to, sorted by code
func (p *Platforms) Eligible() []PlatformConfig {
	all := p.All()
	out := all[:0]
	for _, c := range all {
		if c.Eligible() {
			out = append(out, c)
		}
	}
	return out
}
