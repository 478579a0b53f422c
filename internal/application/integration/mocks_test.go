package integration

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/cache"
	"github.com/erp/catalogsync/internal/infrastructure/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPlatformClient is a mock implementation of integration.PlatformClient
type MockPlatformClient struct {
	mock.Mock
	code integration.PlatformCode
	kind integration.PlatformKind
}

func newMockPlatformClient(code integration.PlatformCode) *MockPlatformClient {
	return &MockPlatformClient{code: code, kind: integration.PlatformKindCommerce}
}

func (m *MockPlatformClient) Code() integration.PlatformCode { return m.code }

func (m *MockPlatformClient) Kind() integration.PlatformKind { return m.kind }

func (m *MockPlatformClient) Supports(kind catalog.EntityKind) bool {
	return slices.Contains(m.kind.DefaultKinds(), kind)
}

func (m *MockPlatformClient) Find(ctx context.Context, lookup integration.Lookup) (catalog.ExternalID, bool, error) {
	args := m.Called(ctx, lookup)
	return args.Get(0).(catalog.ExternalID), args.Bool(1), args.Error(2)
}

func (m *MockPlatformClient) Create(ctx context.Context, lookup integration.Lookup, payload integration.Payload) (catalog.ExternalID, error) {
	args := m.Called(ctx, lookup, payload)
	return args.Get(0).(catalog.ExternalID), args.Error(1)
}

func (m *MockPlatformClient) Update(ctx context.Context, lookup integration.Lookup, id catalog.ExternalID, payload integration.Payload) error {
	args := m.Called(ctx, lookup, id, payload)
	return args.Error(0)
}

func (m *MockPlatformClient) Delete(ctx context.Context, lookup integration.Lookup, id catalog.ExternalID) error {
	args := m.Called(ctx, lookup, id)
	return args.Error(0)
}

// fakePlatform is an in-memory platform keeping remote resources by id. It
// answers Find by natural key the way the real platforms do.
type fakePlatform struct {
	mu        sync.Mutex
	code      integration.PlatformCode
	kind      integration.PlatformKind
	nextID    int
	resources map[catalog.ExternalID]fakeResource
	calls     map[string]int
	fail      map[string][]error // queued errors per method
}

type fakeResource struct {
	Lookup  integration.Lookup
	Payload integration.Payload
}

func newFakePlatform(code integration.PlatformCode, kind integration.PlatformKind) *fakePlatform {
	return &fakePlatform{
		code:      code,
		kind:      kind,
		nextID:    100,
		resources: make(map[catalog.ExternalID]fakeResource),
		calls:     make(map[string]int),
		fail:      make(map[string][]error),
	}
}

func (f *fakePlatform) Code() integration.PlatformCode { return f.code }

func (f *fakePlatform) Kind() integration.PlatformKind { return f.kind }

func (f *fakePlatform) Supports(kind catalog.EntityKind) bool {
	return slices.Contains(f.kind.DefaultKinds(), kind)
}

func (f *fakePlatform) Find(_ context.Context, lookup integration.Lookup) (catalog.ExternalID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("find"); err != nil {
		return "", false, err
	}
	for id, r := range f.resources {
		if r.Lookup == lookup {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (f *fakePlatform) Create(_ context.Context, lookup integration.Lookup, payload integration.Payload) (catalog.ExternalID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("create"); err != nil {
		return "", err
	}
	f.nextID++
	id := catalog.ExternalID(fmt.Sprint(f.nextID))
	f.resources[id] = fakeResource{Lookup: lookup, Payload: payload}
	return id, nil
}

func (f *fakePlatform) Update(_ context.Context, lookup integration.Lookup, id catalog.ExternalID, payload integration.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("update"); err != nil {
		return err
	}
	if _, ok := f.resources[id]; !ok {
		return f.status("update", http.StatusNotFound)
	}
	f.resources[id] = fakeResource{Lookup: lookup, Payload: payload}
	return nil
}

func (f *fakePlatform) Delete(_ context.Context, _ integration.Lookup, id catalog.ExternalID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next("delete"); err != nil {
		return err
	}
	if _, ok := f.resources[id]; !ok {
		return f.status("delete", http.StatusNotFound)
	}
	delete(f.resources, id)
	return nil
}

// failNext queues HTTP status failures for the next calls of method
func (f *fakePlatform) failNext(method string, codes ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, code := range codes {
		f.fail[method] = append(f.fail[method], f.status(method, code))
	}
}

// seed puts a resource on the platform as if someone had created it there
func (f *fakePlatform) seed(lookup integration.Lookup) catalog.ExternalID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := catalog.ExternalID(fmt.Sprint(f.nextID))
	f.resources[id] = fakeResource{Lookup: lookup}
	return id
}

func (f *fakePlatform) drop(id catalog.ExternalID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resources, id)
}

func (f *fakePlatform) has(id catalog.ExternalID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.resources[id]
	return ok
}

func (f *fakePlatform) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resources)
}

func (f *fakePlatform) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakePlatform) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakePlatform) next(method string) error {
	f.calls[method]++
	queued := f.fail[method]
	if len(queued) == 0 {
		return nil
	}
	f.fail[method] = queued[1:]
	return queued[0]
}

func (f *fakePlatform) status(method string, code int) error {
	return &integration.PlatformError{Platform: f.code, Operation: method, StatusCode: code}
}

// memStore is an in-memory entity store. It hands out copies, so tests see
// only what was written through the ports.
type memStore struct {
	mu         sync.Mutex
	entities   map[uuid.UUID]*catalog.Entity
	tombstones map[uuid.UUID]*catalog.Tombstone
	events     []shared.DomainEvent
	saveErr    error
}

func newMemStore() *memStore {
	return &memStore{
		entities:   make(map[uuid.UUID]*catalog.Entity),
		tombstones: make(map[uuid.UUID]*catalog.Tombstone),
	}
}

func cloneEntity(e *catalog.Entity) *catalog.Entity {
	c := *e
	c.ExternalIDs = e.ExternalIDs.Clone()
	c.Channels = slices.Clone(e.Channels)
	return &c
}

func (s *memStore) put(e *catalog.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = cloneEntity(e)
}

func (s *memStore) get(t *testing.T, id uuid.UUID) *catalog.Entity {
	t.Helper()
	e, err := s.FindByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

// remove hard deletes e and writes its tombstone
func (s *memStore) remove(e *catalog.Entity) *catalog.Tombstone {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.entities[e.ID]
	t := stored.Tombstone(uuid.New())
	delete(s.entities, e.ID)
	s.tombstones[e.ID] = t
	return t
}

func (s *memStore) recordedEvents() []shared.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*catalog.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneEntity(e), nil
}

func (s *memStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*catalog.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*catalog.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

func (s *memStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entities[id]
	return ok, nil
}

func (s *memStore) FindByNaturalKey(_ context.Context, kind catalog.EntityKind, naturalKey string) (*catalog.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalog.NormalizeKey(kind, naturalKey)
	for _, e := range s.entities {
		if e.Kind == kind && e.NaturalKey == key {
			return cloneEntity(e), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *memStore) FindByExternalID(_ context.Context, platform string, kind catalog.EntityKind, externalID catalog.ExternalID) (*catalog.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if id, ok := e.ExternalIDs.Get(platform); ok && e.Kind == kind && id == externalID {
			return cloneEntity(e), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *memStore) FindSharing(_ context.Context, platform string, kind catalog.EntityKind, externalID catalog.ExternalID, exclude uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for _, e := range s.entities {
		if e.ID == exclude || e.Kind != kind {
			continue
		}
		if id, ok := e.ExternalIDs.Get(platform); ok && id == externalID {
			out = append(out, e.ID)
		}
	}
	return out, nil
}

func (s *memStore) SaveWithEvents(_ context.Context, e *catalog.Entity, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entities[e.ID] = cloneEntity(e)
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) GetExternalID(_ context.Context, entityID uuid.UUID, platform string) (catalog.ExternalID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return "", false, shared.ErrNotFound
	}
	id, ok := e.ExternalIDs.Get(platform)
	return id, ok, nil
}

func (s *memStore) SetExternalID(_ context.Context, entityID uuid.UUID, platform string, id catalog.ExternalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return shared.ErrNotFound
	}
	return e.ExternalIDs.Set(platform, id)
}

func (s *memStore) ClearExternalID(_ context.Context, entityID uuid.UUID, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[entityID]; ok {
		e.ExternalIDs.Clear(platform)
	}
	return nil
}

func (s *memStore) FindDependents(_ context.Context, referencedID uuid.UUID) ([]catalog.RelationEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.RelationEdge
	for _, e := range s.entities {
		for _, edge := range e.References() {
			if edge.ReferencedID == referencedID {
				out = append(out, edge)
			}
		}
	}
	return out, nil
}

func (s *memStore) FindTombstone(_ context.Context, entityID uuid.UUID) (*catalog.Tombstone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tombstones[entityID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return t, nil
}

// memAttempts is an in-memory SyncAttemptRepository
type memAttempts struct {
	mu       sync.Mutex
	attempts []*integration.SyncAttempt
}

func (r *memAttempts) Save(_ context.Context, a *integration.SyncAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *memAttempts) List(_ context.Context, f integration.AttemptFilter) ([]*integration.SyncAttempt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.SyncAttempt
	for _, a := range r.attempts {
		if f.EntityID != nil && a.Entity.ID != *f.EntityID {
			continue
		}
		if f.Platform != "" && a.Platform != f.Platform {
			continue
		}
		if f.Outcome != "" && a.Outcome != f.Outcome {
			continue
		}
		out = append(out, a)
	}
	return slices.Clone(out), int64(len(out)), nil
}

func (r *memAttempts) FindFailedLatest(_ context.Context, since time.Time, limit int) ([]*integration.SyncAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type key struct {
		entity   uuid.UUID
		platform integration.PlatformCode
	}
	latest := make(map[key]*integration.SyncAttempt)
	var order []key
	for _, a := range r.attempts {
		k := key{a.Entity.ID, a.Platform}
		if _, ok := latest[k]; !ok {
			order = append(order, k)
		}
		latest[k] = a
	}
	var out []*integration.SyncAttempt
	for _, k := range order {
		a := latest[k]
		if a.Outcome == integration.SyncOutcomeFailed && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memAttempts) FindOlderThan(_ context.Context, before time.Time, offset, limit int) ([]*integration.SyncAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var old []*integration.SyncAttempt
	for _, a := range r.attempts {
		if a.CreatedAt.Before(before) {
			old = append(old, a)
		}
	}
	if offset >= len(old) {
		return nil, nil
	}
	old = old[offset:]
	if limit > 0 && len(old) > limit {
		old = old[:limit]
	}
	return old, nil
}

func (r *memAttempts) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.attempts[:0]
	var n int64
	for _, a := range r.attempts {
		if a.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return n, nil
}

func (r *memAttempts) byOutcome(outcome integration.SyncOutcome) []*integration.SyncAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.SyncAttempt
	for _, a := range r.attempts {
		if a.Outcome == outcome {
			out = append(out, a)
		}
	}
	return out
}

func fastRetryPolicy(maxAttempts int) *retry.Policy {
	return retry.NewPolicy(retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	})
}

func shopConfig() integration.PlatformConfig {
	return integration.PlatformConfig{
		Code:          "shop",
		Kind:          integration.PlatformKindCommerce,
		BaseURL:       "http://shop.test",
		Key:           "ck",
		Secret:        "cs",
		WebhookSecret: "whsec",
		Enabled:       true,
	}
}

func notesConfig() integration.PlatformConfig {
	return integration.PlatformConfig{
		Code:       "notes",
		Kind:       integration.PlatformKindNotes,
		BaseURL:    "http://notes.test",
		Secret:     "token",
		DatabaseID: "db",
		Enabled:    true,
	}
}

func newProduct(t *testing.T, isbn, name string, terms ...uuid.UUID) *catalog.Entity {
	t.Helper()
	e, err := catalog.NewEntity(catalog.KindProduct, isbn, name, catalog.ProductDetail{
		Price:   decimal.RequireFromString("12.50"),
		TermIDs: terms,
	})
	require.NoError(t, err)
	return e
}

func newTerm(t *testing.T, slug, name string, parent *uuid.UUID) *catalog.Entity {
	t.Helper()
	e, err := catalog.NewEntity(catalog.KindTerm, catalog.TermKey(catalog.TaxonomyCategory, slug), name, catalog.TermDetail{
		Taxonomy: catalog.TaxonomyCategory,
		Slug:     slug,
		ParentID: parent,
	})
	require.NoError(t, err)
	return e
}

// publishOn publishes e and assigns it to the platforms
func publishOn(t *testing.T, e *catalog.Entity, platforms ...integration.PlatformCode) *catalog.Entity {
	t.Helper()
	require.NoError(t, e.Publish())
	for _, p := range platforms {
		e.AssignChannel(p.String())
	}
	return e
}

// harness wires the reconciliation services over in-memory collaborators
type harness struct {
	store    *memStore
	markers  *cache.InMemoryIdempotencyStore
	registry *Registry
	guard    *LoopGuard
	gate     *ChangeGate
	attempts *memAttempts
	shop     *fakePlatform
	notes    *fakePlatform
	adapters map[integration.PlatformCode]*PlatformAdapter
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		markers:  cache.NewInMemoryIdempotencyStore(),
		attempts: &memAttempts{},
		shop:     newFakePlatform("shop", integration.PlatformKindCommerce),
		notes:    newFakePlatform("notes", integration.PlatformKindNotes),
		adapters: make(map[integration.PlatformCode]*PlatformAdapter),
	}
	t.Cleanup(func() { _ = h.markers.Close() })

	h.registry = NewRegistry(h.store, nil)
	h.guard = NewLoopGuard(h.markers)
	h.gate = NewChangeGate(NewSyncSwitch(false), h.guard)

	deps := AdapterDeps{
		Store:    h.store,
		Registry: h.registry,
		Policy:   fastRetryPolicy(3),
		Cache:    cache.NewLookupCache(64, time.Minute),
		Markers:  h.markers,
		Guard:    h.guard,
	}
	h.adapters["shop"] = NewPlatformAdapter(h.shop, shopConfig(), deps)
	h.adapters["notes"] = NewPlatformAdapter(h.notes, notesConfig(), deps)

	h.orch = NewOrchestrator(
		integration.NewPlatforms(shopConfig(), notesConfig()),
		[]*PlatformAdapter{h.adapters["shop"], h.adapters["notes"]},
		h.gate,
		h.store,
		NewCascadePropagator(h.store, nil, nil),
		WithAttemptRepository(h.attempts),
	)
	return h
}

// reconcile runs a locally initiated reconciliation of e
func (h *harness) reconcile(t *testing.T, id uuid.UUID) *Report {
	t.Helper()
	report, err := h.orch.Reconcile(context.Background(), id, shared.NewSyncContext(shared.SyncTriggerAdmin))
	require.NoError(t, err)
	return report
}
