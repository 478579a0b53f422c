package notes

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
)

const (
	// DefaultAPIVersion is sent in the Notion-Version header
	DefaultAPIVersion = "2022-06-28"
	// DefaultTimeout bounds one HTTP call to a notes platform
	DefaultTimeout = 20 * time.Second
)

// Errors for notes configuration
var (
	ErrNotesConfigMissingBaseURL    = errors.New("notes: base url is required")
	ErrNotesConfigInvalidBaseURL    = errors.New("notes: base url is invalid")
	ErrNotesConfigMissingToken      = errors.New("notes: integration token is required")
	ErrNotesConfigMissingDatabaseID = errors.New("notes: database id is required")
)

// NotesConfig holds the connection settings of one notes database
type NotesConfig struct {
	Code        integration.PlatformCode
	BaseURL     string // e.g. https://api.notion.com
	Token       string
	DatabaseID  string
	APIVersion  string
	Timeout     time.Duration
	EntityKinds []catalog.EntityKind
}

// NewNotesConfig builds a notes config from a platform config. The platform
// secret is the integration token.
func NewNotesConfig(p integration.PlatformConfig) *NotesConfig {
	return &NotesConfig{
		Code:        p.Code,
		BaseURL:     p.BaseURL,
		Token:       p.Secret,
		DatabaseID:  p.DatabaseID,
		Timeout:     p.Timeout,
		EntityKinds: p.EntityKinds,
	}
}

// Validate validates the config and applies defaults
func (c *NotesConfig) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return ErrNotesConfigMissingBaseURL
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return ErrNotesConfigInvalidBaseURL
	}
	c.Token = strings.TrimSpace(c.Token)
	if c.Token == "" {
		return ErrNotesConfigMissingToken
	}
	if c.DatabaseID == "" {
		return ErrNotesConfigMissingDatabaseID
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.EntityKinds) == 0 {
		c.EntityKinds = integration.PlatformKindNotes.DefaultKinds()
	}
	return nil
}
