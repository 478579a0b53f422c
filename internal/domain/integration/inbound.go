package integration

import (
	"fmt"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
)

// InboundTopic is what happened to a remote resource
type InboundTopic string

const (
	InboundCreated InboundTopic = "created"
	InboundUpdated InboundTopic = "updated"
	InboundDeleted InboundTopic = "deleted"
)

// ParseInboundTopic parses a topic header value. Values like "product.updated"
// are accepted and reduced to their action.
func ParseInboundTopic(s string) (InboundTopic, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	switch t := InboundTopic(s); t {
	case InboundCreated, InboundUpdated, InboundDeleted:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown topic %q", ErrInvalidPayload, s)
	}
}

// InboundTermRef is a term reference as the platform knows it
type InboundTermRef struct {
	Taxonomy   catalog.Taxonomy
	ExternalID catalog.ExternalID
}

// InboundRecord is the platform-neutral content of one webhook delivery
type InboundRecord struct {
	Platform   PlatformCode
	Kind       catalog.EntityKind
	Topic      InboundTopic
	ExternalID catalog.ExternalID
	NaturalKey string
	Name       string
	Published  *bool
	Detail     catalog.Detail // nil for deletes
	TermRefs   []InboundTermRef
}

// Validate checks the fields every topic needs
func (r *InboundRecord) Validate() error {
	if r.ExternalID.IsZero() {
		return fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}
	if r.Topic == InboundDeleted {
		return nil
	}
	if strings.TrimSpace(r.NaturalKey) == "" {
		return fmt.Errorf("%w: missing natural key", ErrInvalidPayload)
	}
	if r.Detail == nil || r.Detail.Kind() != r.Kind {
		return fmt.Errorf("%w: missing %s detail", ErrInvalidPayload, r.Kind)
	}
	return nil
}
