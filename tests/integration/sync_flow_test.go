package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	catalogapp "github.com/erp/catalogsync/internal/application/catalog"
	integrationapp "github.com/erp/catalogsync/internal/application/integration"
	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/infrastructure/cache"
	"github.com/erp/catalogsync/internal/infrastructure/ecommerce"
	"github.com/erp/catalogsync/internal/infrastructure/event"
	"github.com/erp/catalogsync/internal/infrastructure/persistence"
	"github.com/erp/catalogsync/internal/infrastructure/ratelimit"
	"github.com/erp/catalogsync/internal/infrastructure/retry"
	"github.com/erp/catalogsync/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

const waitTimeout = 10 * time.Second

// pipeline wires entity writes through the outbox, the bus and the
// orchestrator to a fake commerce platform
type pipeline struct {
	entities *catalogapp.EntityService
	repo     *persistence.GormEntityRepository
	attempts *persistence.GormSyncAttemptRepository
	sw       *integrationapp.SyncSwitch
	fake     *testutil.FakeCommerce
	events   *testutil.RecordingHandler
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	tdb := NewTestDB(t)
	fake := testutil.NewFakeCommerce(t)
	log := zap.NewNop()

	platform := integration.PlatformConfig{
		Code:    "shop",
		Kind:    integration.PlatformKindCommerce,
		BaseURL: fake.URL(),
		Key:     "ck_test",
		Secret:  "cs_test",
		Enabled: true,
	}
	platforms := integration.NewPlatforms(platform)

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	repo := persistence.NewGormEntityRepository(tdb.DB)
	repo.SetOutboxEventSaver(event.NewOutboxPublisher(serializer))
	attempts := persistence.NewGormSyncAttemptRepository(tdb.DB)

	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	guard := integrationapp.NewLoopGuard(store)
	sw := integrationapp.NewSyncSwitch(false)

	client, err := ecommerce.NewCommerceClient(ecommerce.NewCommerceConfig(platform), fake.Server.Client())
	require.NoError(t, err)
	registry := integrationapp.NewRegistry(repo, log)
	adapter := integrationapp.NewPlatformAdapter(client, platform, integrationapp.AdapterDeps{
		Store:    repo,
		Registry: registry,
		Limiter:  ratelimit.NewPlatformLimiter(ratelimit.WithRate(100, 10)),
		Policy: retry.NewPolicy(retry.Config{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2,
		}),
		Markers: store,
		Guard:   guard,
		Logger:  log,
	})
	orchestrator := integrationapp.NewOrchestrator(platforms, []*integrationapp.PlatformAdapter{adapter},
		integrationapp.NewChangeGate(sw, guard), repo,
		integrationapp.NewCascadePropagator(repo, nil, log),
		integrationapp.WithAttemptRepository(attempts),
	)

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewIdempotentHandler(orchestrator, store, log), orchestrator.EventTypes()...)
	recorder := testutil.NewRecordingHandler()
	bus.Subscribe(recorder)

	processor := event.NewOutboxProcessor(event.NewGormOutboxRepository(tdb.DB), bus, serializer, event.OutboxProcessorConfig{
		BatchSize:    50,
		PollInterval: 50 * time.Millisecond,
	}, log)
	require.NoError(t, processor.Start(context.Background()))
	t.Cleanup(func() { _ = processor.Stop(context.Background()) })

	return &pipeline{
		entities: catalogapp.NewEntityService(repo, platforms, log),
		repo:     repo,
		attempts: attempts,
		sw:       sw,
		fake:     fake,
		events:   recorder,
	}
}

func (p *pipeline) waitExternalID(t *testing.T, id uuid.UUID) catalog.ExternalID {
	t.Helper()
	var ext catalog.ExternalID
	ok := testutil.WaitFor(func() bool {
		var found bool
		ext, found, _ = p.repo.GetExternalID(context.Background(), id, "shop")
		return found
	}, waitTimeout)
	require.True(t, ok, "entity %s never reached the platform", id)
	return ext
}

func (p *pipeline) waitCalls(t *testing.T, method, path string, n int) {
	t.Helper()
	ok := testutil.WaitFor(func() bool {
		count := 0
		for _, c := range p.fake.Calls() {
			if c.Method == method && c.Path == path {
				count++
			}
		}
		return count >= n
	}, waitTimeout)
	require.True(t, ok, "expected %d %s %s", n, method, path)
}

func productRequest(isbn, name string, termIDs ...uuid.UUID) catalogapp.CreateEntityRequest {
	detail, _ := json.Marshal(map[string]any{"price": "12.50", "term_ids": termIDs})
	return catalogapp.CreateEntityRequest{
		Kind:       "PRODUCT",
		NaturalKey: isbn,
		Name:       name,
		Detail:     detail,
		Channels:   []string{"shop"},
		Publish:    true,
	}
}

func TestSyncFlow_ProductLifecycle(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	created, err := p.entities.Create(ctx, productRequest("978-0-441-01359-3", "Dune"))
	require.NoError(t, err)

	ext := p.waitExternalID(t, created.ID)
	remote, ok := p.fake.Resource("/products", ext.String())
	require.True(t, ok)
	assert.Equal(t, "Dune", remote["name"])

	t.Run("update replaces the remote copy", func(t *testing.T) {
		name := "Dune (Deluxe)"
		_, err := p.entities.Update(ctx, created.ID, catalogapp.UpdateEntityRequest{Name: &name})
		require.NoError(t, err)

		p.waitCalls(t, http.MethodPut, "/products/"+ext.String(), 1)
		remote, _ := p.fake.Resource("/products", ext.String())
		assert.Equal(t, name, remote["name"])
		assert.Equal(t, 1, p.fake.Len("/products"))
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		p.fake.FailNext(1)
		name := "Dune (Retry)"
		_, err := p.entities.Update(ctx, created.ID, catalogapp.UpdateEntityRequest{Name: &name})
		require.NoError(t, err)

		p.waitCalls(t, http.MethodPut, "/products/"+ext.String(), 2)
		remote, _ := p.fake.Resource("/products", ext.String())
		assert.Equal(t, name, remote["name"])
	})

	t.Run("delete removes the remote copy", func(t *testing.T) {
		require.NoError(t, p.entities.Delete(ctx, created.ID))

		p.waitCalls(t, http.MethodDelete, "/products/"+ext.String(), 1)
		assert.Zero(t, p.fake.Len("/products"))
	})

	require.True(t, testutil.WaitFor(func() bool {
		list, _, err := p.attempts.List(ctx, integration.AttemptFilter{EntityID: &created.ID, Page: 1, PageSize: 20})
		return err == nil && len(list) >= 4
	}, waitTimeout))
	failed, _, err := p.attempts.List(ctx, integration.AttemptFilter{EntityID: &created.ID, Outcome: integration.SyncOutcomeFailed, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Contains(t, p.events.Types(), catalog.EventTypeEntityDeleted)
}

func TestSyncFlow_KillSwitchRecordsSkips(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.sw.Kill()

	created, err := p.entities.Create(ctx, productRequest("978-0-306-40615-7", "Paused"))
	require.NoError(t, err)

	require.True(t, testutil.WaitFor(func() bool {
		list, _, err := p.attempts.List(ctx, integration.AttemptFilter{EntityID: &created.ID, Page: 1, PageSize: 20})
		return err == nil && len(list) == 1
	}, waitTimeout))
	list, _, err := p.attempts.List(ctx, integration.AttemptFilter{EntityID: &created.ID, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, integration.SyncOutcomeSkipped, list[0].Outcome)
	assert.Equal(t, integrationapp.ReasonKillSwitch, list[0].Reason)
	assert.Zero(t, p.fake.Count(""))
}

func TestSyncFlow_TermChangeCascadesToProducts(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	termDetail, _ := json.Marshal(map[string]any{"taxonomy": "author", "slug": "frank-herbert"})
	term, err := p.entities.Create(ctx, catalogapp.CreateEntityRequest{
		Kind:       "TERM",
		NaturalKey: "author/frank-herbert",
		Name:       "Frank Herbert",
		Detail:     termDetail,
		Channels:   []string{"shop"},
		Publish:    true,
	})
	require.NoError(t, err)
	p.waitExternalID(t, term.ID)

	product, err := p.entities.Create(ctx, productRequest("978-0-441-01359-3", "Dune", term.ID))
	require.NoError(t, err)
	ext := p.waitExternalID(t, product.ID)

	name := "Frank Patrick Herbert"
	_, err = p.entities.Update(ctx, term.ID, catalogapp.UpdateEntityRequest{Name: &name})
	require.NoError(t, err)

	p.waitCalls(t, http.MethodPut, "/products/"+ext.String(), 1)
	cascaded := testutil.WaitFor(func() bool {
		list, _, err := p.attempts.List(ctx, integration.AttemptFilter{EntityID: &product.ID, Page: 1, PageSize: 20})
		if err != nil {
			return false
		}
		for _, a := range list {
			if a.Cascade && a.Outcome == integration.SyncOutcomeSuccess {
				return true
			}
		}
		return false
	}, waitTimeout)
	assert.True(t, cascaded)
}
