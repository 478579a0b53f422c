package integration

import (
	"context"

	"github.com/erp/catalogsync/internal/domain/catalog"
)

// PlatformClient is the port to one external platform. Implementations make a
// single HTTP call per method; retry and rate limiting are applied by the caller.
type PlatformClient interface {
	// Code returns the platform code this client talks to
	Code() PlatformCode
	// Kind returns the adapter family of the platform
	Kind() PlatformKind
	// Supports reports whether the platform accepts entities of kind
	Supports(kind catalog.EntityKind) bool
	// Find searches the platform by natural key
	Find(ctx context.Context, lookup Lookup) (catalog.ExternalID, bool, error)
	// Create creates the remote resource and returns its id
	Create(ctx context.Context, lookup Lookup, payload Payload) (catalog.ExternalID, error)
	// Update replaces the remote resource; a missing resource yields ErrRemoteNotFound
	Update(ctx context.Context, lookup Lookup, id catalog.ExternalID, payload Payload) error
	// Delete removes the remote resource; a missing resource is not an error
	Delete(ctx context.Context, lookup Lookup, id catalog.ExternalID) error
}

// InboundDecoder turns a webhook body of a platform into an InboundRecord
type InboundDecoder interface {
	DecodeInbound(kind catalog.EntityKind, topic InboundTopic, body []byte) (*InboundRecord, error)
}
