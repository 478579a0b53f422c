package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var keyFolder = cases.Fold()

// NormalizeNaturalKey canonicalizes a natural key (ISBN, SKU, email, coupon code,
// order number) so lookups on every platform compare equal: NFC, case folded,
// surrounding whitespace trimmed and inner whitespace collapsed.
func NormalizeNaturalKey(key string) string {
	key = norm.NFC.String(strings.TrimSpace(key))
	key = strings.Join(strings.Fields(key), " ")
	return keyFolder.String(key)
}

// NormalizeISBN strips hyphens and spaces from an ISBN-like key
func NormalizeISBN(key string) string {
	r := strings.NewReplacer("-", "", " ", "")
	return NormalizeNaturalKey(r.Replace(key))
}

// NormalizeKey applies the normalization used for natural keys of kind
func NormalizeKey(kind EntityKind, key string) string {
	if kind == KindProduct {
		return NormalizeISBN(key)
	}
	return NormalizeNaturalKey(key)
}
