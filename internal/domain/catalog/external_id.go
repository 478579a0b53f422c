package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExternalID is the identifier of a remote resource. Platforms return either
// numbers or strings; both are kept as their decimal/string text.
type ExternalID string

// IsZero reports whether the id is empty
func (id ExternalID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// String returns the id text
func (id ExternalID) String() string {
	return string(id)
}

// UnmarshalJSON accepts a JSON string or number
func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidExternalID, err)
		}
		*id = ExternalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidExternalID, string(data))
	}
	*id = ExternalID(n.String())
	return nil
}

// ExternalIDs maps platform code to the id of the entity's remote copy.
// A platform has an entry iff the remote resource is known to exist.
type ExternalIDs map[string]ExternalID

// Get returns the id registered for platform
func (m ExternalIDs) Get(platform string) (ExternalID, bool) {
	id, ok := m[platform]
	if !ok || id.IsZero() {
		return "", false
	}
	return id, true
}

// Has reports whether an id is registered for platform
func (m ExternalIDs) Has(platform string) bool {
	_, ok := m.Get(platform)
	return ok
}

// Set registers id for platform; a zero id is rejected
func (m ExternalIDs) Set(platform string, id ExternalID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: empty id for %s", ErrInvalidExternalID, platform)
	}
	m[platform] = id
	return nil
}

// Clear removes the entry for platform
func (m ExternalIDs) Clear(platform string) {
	delete(m, platform)
}

// Platforms returns the platforms with a registered id, sorted
func (m ExternalIDs) Platforms() []string {
	out := make([]string, 0, len(m))
	for p, id := range m {
		if !id.IsZero() {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy safe to mutate
func (m ExternalIDs) Clone() ExternalIDs {
	out := make(ExternalIDs, len(m))
	for p, id := range m {
		out[p] = id
	}
	return out
}
