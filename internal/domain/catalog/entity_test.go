package catalog

import (
	"encoding/json"
	"testing"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProduct(t *testing.T) *Entity {
	t.Helper()
	e, err := NewEntity(KindProduct, "978-3-16-148410-0", "The Book", ProductDetail{
		Price: decimal.NewFromFloat(12.5),
	})
	require.NoError(t, err)
	return e
}

func TestNewEntity(t *testing.T) {
	t.Run("creates draft entity with normalized key", func(t *testing.T) {
		e := newTestProduct(t)
		assert.Equal(t, "9783161484100", e.NaturalKey)
		assert.Equal(t, StateDraft, e.State)
		assert.False(t, e.EverPublished)
		assert.Empty(t, e.ExternalIDs)
		assert.Equal(t, 1, e.Version)
	})

	t.Run("rejects mismatched detail", func(t *testing.T) {
		_, err := NewEntity(KindTerm, "fiction", "Fiction", ProductDetail{})
		assert.ErrorIs(t, err, ErrDetailKind)
	})

	t.Run("rejects unknown taxonomy", func(t *testing.T) {
		_, err := NewEntity(KindTerm, "fiction", "Fiction", TermDetail{Taxonomy: "genre"})
		assert.Error(t, err)
	})

	t.Run("rejects empty key and name", func(t *testing.T) {
		_, err := NewEntity(KindCustomer, "  ", "Jane", CustomerDetail{})
		assert.ErrorIs(t, err, ErrEmptyNaturalKey)
		_, err = NewEntity(KindCustomer, "jane@example.com", "", CustomerDetail{})
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("rejects invalid kind", func(t *testing.T) {
		_, err := NewEntity("WIDGET", "x", "x", ProductDetail{})
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestNewEntity_TermKeyFollowsDetail(t *testing.T) {
	t.Run("bare slug gets the taxonomy", func(t *testing.T) {
		e, err := NewEntity(KindTerm, "Fiction", "Fiction", TermDetail{Taxonomy: TaxonomyCategory, Slug: "fiction"})
		require.NoError(t, err)
		assert.Equal(t, "category/fiction", e.NaturalKey)
	})

	t.Run("empty slug is taken from the key", func(t *testing.T) {
		e, err := NewEntity(KindTerm, "tag/classics", "Classics", TermDetail{Taxonomy: TaxonomyTag})
		require.NoError(t, err)
		assert.Equal(t, "tag/classics", e.NaturalKey)
		assert.Equal(t, "classics", e.Detail.(TermDetail).Slug)
	})

	t.Run("key taxonomy must match the detail", func(t *testing.T) {
		_, err := NewEntity(KindTerm, "tag/x", "X", TermDetail{Taxonomy: TaxonomyCategory})
		assert.ErrorIs(t, err, ErrTermKeyMismatch)
	})

	t.Run("key slug must match the detail", func(t *testing.T) {
		_, err := NewEntity(KindTerm, "fiction", "Fiction", TermDetail{Taxonomy: TaxonomyCategory, Slug: "novels"})
		assert.ErrorIs(t, err, ErrTermKeyMismatch)
	})
}

func TestEntity_TermRekeying(t *testing.T) {
	e, err := NewEntity(KindTerm, "fiction", "Fiction", TermDetail{Taxonomy: TaxonomyCategory, Slug: "fiction"})
	require.NoError(t, err)

	t.Run("detail update moves the key", func(t *testing.T) {
		require.NoError(t, e.Update("Fiction", TermDetail{Taxonomy: TaxonomyTag, Description: "moved"}))
		assert.Equal(t, "tag/fiction", e.NaturalKey)
		assert.Equal(t, "fiction", e.Detail.(TermDetail).Slug)
	})

	t.Run("new key changes the slug", func(t *testing.T) {
		require.NoError(t, e.ChangeNaturalKey("novels"))
		assert.Equal(t, "tag/novels", e.NaturalKey)
		assert.Equal(t, "novels", e.Detail.(TermDetail).Slug)
		assert.Equal(t, "moved", e.Detail.(TermDetail).Description)
	})

	t.Run("same key is a no-op", func(t *testing.T) {
		version := e.Version
		require.NoError(t, e.ChangeNaturalKey("tag/novels"))
		assert.Equal(t, version, e.Version)
	})

	t.Run("foreign taxonomy is rejected", func(t *testing.T) {
		assert.ErrorIs(t, e.ChangeNaturalKey("author/novels"), ErrTermKeyMismatch)
		assert.Equal(t, "tag/novels", e.NaturalKey)
	})
}

func TestEntity_PublishUnpublish(t *testing.T) {
	e := newTestProduct(t)

	require.NoError(t, e.Publish())
	assert.True(t, e.IsPublished())
	assert.True(t, e.EverPublished)
	assert.ErrorIs(t, e.Publish(), ErrAlreadyPublished)

	require.NoError(t, e.Unpublish())
	assert.False(t, e.IsPublished())
	assert.True(t, e.EverPublished, "unpublish keeps history")
	assert.ErrorIs(t, e.Unpublish(), ErrAlreadyDraft)
}

func TestEntity_Channels(t *testing.T) {
	e := newTestProduct(t)

	assert.True(t, e.AssignChannel("shop"))
	assert.True(t, e.AssignChannel("notes"))
	assert.False(t, e.AssignChannel("shop"))
	assert.Equal(t, []string{"notes", "shop"}, e.Channels)

	require.NoError(t, e.ExternalIDs.Set("shop", "17"))
	assert.True(t, e.UnassignChannel("shop"))
	assert.False(t, e.HasChannel("shop"))
	assert.True(t, e.ExternalIDs.Has("shop"), "unassigning keeps the registry entry")
}

func TestEntity_References(t *testing.T) {
	termA, termB := uuid.New(), uuid.New()
	e, err := NewEntity(KindProduct, "sku-1", "P", ProductDetail{TermIDs: []uuid.UUID{termA, termB, termA}})
	require.NoError(t, err)

	edges := e.References()
	require.Len(t, edges, 2)
	assert.Equal(t, RelationEdge{DependentID: e.ID, ReferencedID: termA}, edges[0])
	assert.Equal(t, termB, edges[1].ReferencedID)

	customer := uuid.New()
	order, err := NewEntity(KindOrder, "1001", "Order 1001", OrderDetail{CustomerID: &customer})
	require.NoError(t, err)
	assert.Equal(t, []RelationEdge{{DependentID: order.ID, ReferencedID: customer}}, order.References())

	parent := uuid.New()
	child, err := NewEntity(KindTerm, "category/novels", "Novels", TermDetail{Taxonomy: TaxonomyCategory, Slug: "novels", ParentID: &parent})
	require.NoError(t, err)
	assert.Equal(t, []RelationEdge{{DependentID: child.ID, ReferencedID: parent}}, child.References())
}

func TestEntity_Tombstone(t *testing.T) {
	e := newTestProduct(t)
	require.NoError(t, e.ExternalIDs.Set("shop", "42"))
	eventID := uuid.New()

	ts := e.Tombstone(eventID)
	e.ExternalIDs.Clear("shop")

	assert.Equal(t, e.ID, ts.EntityID)
	assert.Equal(t, eventID, ts.EventID)
	id, ok := ts.ExternalIDs.Get("shop")
	assert.True(t, ok, "snapshot is independent of later registry changes")
	assert.Equal(t, ExternalID("42"), id)
}

func TestEntityEvents_UseSyncContextEventID(t *testing.T) {
	e := newTestProduct(t)
	sc := shared.FromPlatform("shop")

	ev := NewEntityUpdatedEvent(e, sc, "name")

	assert.Equal(t, sc.EventID, ev.EventID())
	assert.Equal(t, EventTypeEntityUpdated, ev.EventType())
	assert.Equal(t, e.ID, ev.AggregateID())
	assert.Equal(t, "shop", ev.Sync().Origin)
	assert.Equal(t, e.Ref(), ev.Entity())
}

func TestExternalID_UnmarshalJSON(t *testing.T) {
	var ids ExternalIDs
	require.NoError(t, json.Unmarshal([]byte(`{"shop":123,"notes":"abc-def","old":null}`), &ids))

	id, ok := ids.Get("shop")
	assert.True(t, ok)
	assert.Equal(t, ExternalID("123"), id)
	id, ok = ids.Get("notes")
	assert.True(t, ok)
	assert.Equal(t, ExternalID("abc-def"), id)
	assert.False(t, ids.Has("old"))
	assert.Equal(t, []string{"notes", "shop"}, ids.Platforms())

	var bad ExternalID
	assert.ErrorIs(t, json.Unmarshal([]byte(`{}`), &bad), ErrInvalidExternalID)
}

func TestExternalIDs_SetRejectsEmpty(t *testing.T) {
	ids := ExternalIDs{}
	assert.ErrorIs(t, ids.Set("shop", " "), ErrInvalidExternalID)
	assert.False(t, ids.Has("shop"))
}

func TestUnmarshalDetail(t *testing.T) {
	in := ProductDetail{Description: "S1", Price: decimal.RequireFromString("9.99"), TermIDs: []uuid.UUID{uuid.New()}}
	data, err := MarshalDetail(in)
	require.NoError(t, err)

	out, err := UnmarshalDetail(KindProduct, data)
	require.NoError(t, err)
	p, ok := out.(ProductDetail)
	require.True(t, ok)
	assert.Equal(t, "S1", p.Description)
	assert.True(t, in.Price.Equal(p.Price))

	_, err = UnmarshalDetail("WIDGET", data)
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestNormalizeNaturalKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Jane@Example.COM ", "jane@example.com"},
		{"SUMMER  SALE", "summer sale"},
		{"Café", "café"},
		{"STRASSE", "strasse"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeNaturalKey(tt.in))
		})
	}
	assert.Equal(t, "9780306406157", NormalizeISBN("978-0 306-40615-7"))
}

func TestParseEntityKind(t *testing.T) {
	k, err := ParseEntityKind("product")
	require.NoError(t, err)
	assert.Equal(t, KindProduct, k)
	assert.True(t, KindTerm.Referenced())
	assert.False(t, KindProduct.Referenced())

	_, err = ParseEntityKind("widget")
	assert.ErrorIs(t, err, ErrInvalidKind)
}
