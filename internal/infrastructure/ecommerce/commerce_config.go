package ecommerce

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
)

// DefaultTimeout bounds one HTTP call to a commerce platform
const DefaultTimeout = 15 * time.Second

// Errors for commerce configuration
var (
	ErrCommerceConfigMissingBaseURL = errors.New("commerce: base url is required")
	ErrCommerceConfigInvalidBaseURL = errors.New("commerce: base url is invalid")
	ErrCommerceConfigMissingKey     = errors.New("commerce: consumer key is required")
	ErrCommerceConfigMissingSecret  = errors.New("commerce: consumer secret is required")
)

// CommerceConfig holds the connection settings of one commerce platform
type CommerceConfig struct {
	Code           integration.PlatformCode
	BaseURL        string // e.g. https://shop.example.com/wp-json/wc/v3
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
	EntityKinds    []catalog.EntityKind // empty means every kind
}

// NewCommerceConfig builds a commerce config from a platform config
func NewCommerceConfig(p integration.PlatformConfig) *CommerceConfig {
	return &CommerceConfig{
		Code:           p.Code,
		BaseURL:        p.BaseURL,
		ConsumerKey:    p.Key,
		ConsumerSecret: p.Secret,
		Timeout:        p.Timeout,
		EntityKinds:    p.EntityKinds,
	}
}

// Validate validates the config and applies defaults
func (c *CommerceConfig) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return ErrCommerceConfigMissingBaseURL
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return ErrCommerceConfigInvalidBaseURL
	}
	if c.ConsumerKey == "" {
		return ErrCommerceConfigMissingKey
	}
	if c.ConsumerSecret == "" {
		return ErrCommerceConfigMissingSecret
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}
