package catalog

import (
	"fmt"
	"strings"
)

// EntityKind identifies the type of a canonical entity
type EntityKind string

const (
	KindProduct  EntityKind = "PRODUCT"
	KindTerm     EntityKind = "TERM"
	KindCustomer EntityKind = "CUSTOMER"
	KindCoupon   EntityKind = "COUPON"
	KindOrder    EntityKind = "ORDER"
)

// AllKinds returns every supported entity kind
func AllKinds() []EntityKind {
	return []EntityKind{KindProduct, KindTerm, KindCustomer, KindCoupon, KindOrder}
}

// IsValid returns true if the kind is known
func (k EntityKind) IsValid() bool {
	switch k {
	case KindProduct, KindTerm, KindCustomer, KindCoupon, KindOrder:
		return true
	default:
		return false
	}
}

// Referenced reports whether other entities point at entities of this kind,
// so a change must be cascaded to dependents
func (k EntityKind) Referenced() bool {
	return k == KindTerm || k == KindCustomer
}

// String returns the string representation of EntityKind
func (k EntityKind) String() string {
	return string(k)
}

// ParseEntityKind parses a kind case-insensitively ("product", "PRODUCT")
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// PublicationState is the visibility state of a canonical entity
type PublicationState string

const (
	StateDraft     PublicationState = "draft"
	StatePublished PublicationState = "published"
)

// IsValid returns true if the state is known
func (s PublicationState) IsValid() bool {
	return s == StateDraft || s == StatePublished
}
