package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InboundStore is the part of the entity store webhook ingestion writes through
type InboundStore interface {
	FindByExternalID(ctx context.Context, platform string, kind catalog.EntityKind, externalID catalog.ExternalID) (*catalog.Entity, error)
	FindByNaturalKey(ctx context.Context, kind catalog.EntityKind, naturalKey string) (*catalog.Entity, error)
	SaveWithEvents(ctx context.Context, entity *catalog.Entity, events ...shared.DomainEvent) error
}

// InboundDelivery is one webhook call as received
type InboundDelivery struct {
	Platform   integration.PlatformCode
	Kind       catalog.EntityKind
	Topic      integration.InboundTopic
	DeliveryID string
	Body       []byte
}

// InboundOutcome is what a delivery did to the canonical store
type InboundOutcome string

const (
	InboundOutcomeCreated   InboundOutcome = "created"
	InboundOutcomeUpdated   InboundOutcome = "updated"
	InboundOutcomeUnchanged InboundOutcome = "unchanged"
	InboundOutcomeCleared   InboundOutcome = "registry_cleared"
	InboundOutcomeIgnored   InboundOutcome = "ignored"
	InboundOutcomeDuplicate InboundOutcome = "duplicate"
	InboundOutcomeEcho      InboundOutcome = "echo"
)

// InboundResult reports the outcome of one delivery
type InboundResult struct {
	Outcome  InboundOutcome
	EntityID uuid.UUID
	EventID  uuid.UUID
}

// InboundService applies platform webhooks to the canonical store. Every
// write it makes carries the platform as origin, so the orchestrator never
// sends it back there while other platforms still receive it.
type InboundService struct {
	platforms *integration.Platforms
	decoders  map[integration.PlatformCode]integration.InboundDecoder
	store     InboundStore
	registry  *Registry
	guard     *LoopGuard
	logger    *zap.Logger
}

// NewInboundService creates the webhook ingestion service
func NewInboundService(
	platforms *integration.Platforms,
	decoders map[integration.PlatformCode]integration.InboundDecoder,
	store InboundStore,
	registry *Registry,
	guard *LoopGuard,
	logger *zap.Logger,
) *InboundService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundService{
		platforms: platforms,
		decoders:  decoders,
		store:     store,
		registry:  registry,
		guard:     guard,
		logger:    logger,
	}
}

// Platform returns the configuration of a platform that may send webhooks
func (s *InboundService) Platform(code integration.PlatformCode) (integration.PlatformConfig, bool) {
	return s.platforms.Get(code)
}

// WebhookSecret returns the signing secret of platform, if any
func (s *InboundService) WebhookSecret(platform integration.PlatformCode) (string, bool) {
	cfg, ok := s.platforms.Get(platform)
	if !ok {
		return "", false
	}
	return cfg.WebhookSecret, true
}

// Ingest decodes and applies one delivery. Deliveries already seen and echoes
// of our own writes are acknowledged without touching the store.
func (s *InboundService) Ingest(ctx context.Context, d InboundDelivery) (res *InboundResult, err error) {
	cfg, ok := s.platforms.Get(d.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrPlatformNotConfigured, d.Platform)
	}
	decoder, ok := s.decoders[d.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: no webhook decoder for %s", integration.ErrPlatformNotConfigured, d.Platform)
	}
	if !cfg.Supports(d.Kind) {
		return nil, fmt.Errorf("%w: %s on %s", integration.ErrUnsupportedKind, d.Kind, d.Platform)
	}

	rec, err := decoder.DecodeInbound(d.Kind, d.Topic, d.Body)
	if err != nil {
		return nil, err
	}
	rec.Platform = d.Platform

	ctx, log := logger.WithPlatform(ctx, s.logger, d.Platform.String())
	log = log.With(
		zap.String("kind", string(rec.Kind)),
		zap.String("topic", string(rec.Topic)),
		zap.String("external_id", rec.ExternalID.String()),
	)

	fresh, err := s.guard.AcceptDelivery(ctx, d.Platform, d.DeliveryID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return &InboundResult{Outcome: InboundOutcomeDuplicate}, nil
	}
	defer func() {
		if err != nil {
			if rerr := s.guard.ReleaseDelivery(ctx, d.Platform, d.DeliveryID); rerr != nil {
				log.Warn("failed to release webhook delivery", zap.Error(rerr))
			}
		}
	}()

	if rec.Topic != integration.InboundDeleted {
		echo, err := s.guard.ConsumeEcho(ctx, d.Platform, rec.Kind, rec.ExternalID)
		if err != nil {
			return nil, err
		}
		if echo {
			log.Debug("webhook is the echo of our own write")
			return &InboundResult{Outcome: InboundOutcomeEcho}, nil
		}
	}

	if rec.Topic == integration.InboundDeleted {
		return s.applyDelete(ctx, rec, log)
	}
	return s.applyUpsert(ctx, rec, log)
}

// applyDelete clears the registry entry of a remotely deleted resource. The
// canonical entity stays; the next upsert recreates the remote copy.
func (s *InboundService) applyDelete(ctx context.Context, rec *integration.InboundRecord, log *zap.Logger) (*InboundResult, error) {
	e, err := s.store.FindByExternalID(ctx, rec.Platform.String(), rec.Kind, rec.ExternalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Info("remote delete of unknown resource ignored")
			return &InboundResult{Outcome: InboundOutcomeIgnored}, nil
		}
		return nil, err
	}
	if err := s.registry.Forget(ctx, e.ID, rec.Platform); err != nil {
		return nil, err
	}
	log.Info("remote resource deleted, registry entry cleared", zap.String("entity_id", e.ID.String()))
	return &InboundResult{Outcome: InboundOutcomeCleared, EntityID: e.ID}, nil
}

func (s *InboundService) applyUpsert(ctx context.Context, rec *integration.InboundRecord, log *zap.Logger) (*InboundResult, error) {
	sc := shared.FromPlatform(rec.Platform.String())

	e, err := s.store.FindByExternalID(ctx, rec.Platform.String(), rec.Kind, rec.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		e, err = s.adopt(ctx, rec)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return s.create(ctx, rec, sc, log)
		}
	default:
		return nil, err
	}

	termIDs, err := s.resolveTerms(ctx, rec)
	if err != nil {
		return nil, err
	}
	changes, err := applyRecord(e, rec, termIDs)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return &InboundResult{Outcome: InboundOutcomeUnchanged, EntityID: e.ID}, nil
	}

	if err := s.store.SaveWithEvents(ctx, e, catalog.NewEntityUpdatedEvent(e, sc, changes...)); err != nil {
		return nil, err
	}
	log.Info("canonical entity updated from webhook",
		zap.String("entity_id", e.ID.String()),
		zap.Strings("changes", changes),
	)
	return &InboundResult{Outcome: InboundOutcomeUpdated, EntityID: e.ID, EventID: sc.EventID}, nil
}

// adopt finds an entity with the record's natural key that is not yet mapped
// on the platform and registers the remote id for it
func (s *InboundService) adopt(ctx context.Context, rec *integration.InboundRecord) (*catalog.Entity, error) {
	e, err := s.store.FindByNaturalKey(ctx, rec.Kind, rec.NaturalKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if existing, ok := e.ExternalIDs.Get(rec.Platform.String()); ok && existing != rec.ExternalID {
		return nil, fmt.Errorf("%w: %s is mapped to %s on %s, webhook carries %s",
			shared.ErrConflict, e.NaturalKey, existing, rec.Platform, rec.ExternalID)
	}
	if err := s.registry.Record(ctx, e.ID, rec.Platform, rec.ExternalID, IDSourceInbound); err != nil {
		return nil, err
	}
	_ = e.ExternalIDs.Set(rec.Platform.String(), rec.ExternalID)
	return e, nil
}

func (s *InboundService) create(ctx context.Context, rec *integration.InboundRecord, sc shared.SyncContext, log *zap.Logger) (*InboundResult, error) {
	termIDs, err := s.resolveTerms(ctx, rec)
	if err != nil {
		return nil, err
	}
	detail := rec.Detail
	if pd, ok := detail.(catalog.ProductDetail); ok && len(termIDs) > 0 {
		pd.TermIDs = termIDs
		detail = pd
	}

	e, err := catalog.NewEntity(rec.Kind, rec.NaturalKey, rec.Name, detail)
	if err != nil {
		return nil, err
	}
	if err := e.ExternalIDs.Set(rec.Platform.String(), rec.ExternalID); err != nil {
		return nil, err
	}
	e.AssignChannel(rec.Platform.String())
	if rec.Published != nil && *rec.Published {
		if err := e.Publish(); err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveWithEvents(ctx, e, catalog.NewEntityCreatedEvent(e, sc)); err != nil {
		return nil, err
	}
	log.Info("canonical entity created from webhook", zap.String("entity_id", e.ID.String()))
	return &InboundResult{Outcome: InboundOutcomeCreated, EntityID: e.ID, EventID: sc.EventID}, nil
}

// resolveTerms maps the platform term ids of a record to canonical term ids.
// Unknown terms are dropped.
func (s *InboundService) resolveTerms(ctx context.Context, rec *integration.InboundRecord) ([]uuid.UUID, error) {
	if len(rec.TermRefs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(rec.TermRefs))
	for _, ref := range rec.TermRefs {
		term, err := s.store.FindByExternalID(ctx, rec.Platform.String(), catalog.KindTerm, ref.ExternalID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return nil, err
		}
		ids = append(ids, term.ID)
	}
	return ids, nil
}

// applyRecord merges an inbound record into e and returns the names of the
// changed fields. Fields the platform left empty keep their canonical value.
func applyRecord(e *catalog.Entity, rec *integration.InboundRecord, termIDs []uuid.UUID) ([]string, error) {
	var changes []string
	originalKey := e.NaturalKey

	if rec.NaturalKey != "" {
		if err := e.ChangeNaturalKey(rec.NaturalKey); err != nil {
			return nil, err
		}
	}

	name := e.Name
	if rec.Name != "" {
		name = rec.Name
	}
	detail := mergeDetail(e.Detail, rec.Detail, termIDs)
	if name != e.Name || !sameDetail(detail, e.Detail) {
		if name != e.Name {
			changes = append(changes, "name")
		}
		if !sameDetail(detail, e.Detail) {
			changes = append(changes, "detail")
		}
		if err := e.Update(name, detail); err != nil {
			return nil, err
		}
	}
	if e.NaturalKey != originalKey {
		changes = append([]string{"natural_key"}, changes...)
	}

	if rec.Published != nil && *rec.Published != e.IsPublished() {
		var err error
		if *rec.Published {
			err = e.Publish()
		} else {
			err = e.Unpublish()
		}
		if err != nil {
			return nil, err
		}
		changes = append(changes, "state")
	}

	if e.AssignChannel(rec.Platform.String()) {
		changes = append(changes, "channels")
	}
	return changes, nil
}

func mergeDetail(current, inbound catalog.Detail, termIDs []uuid.UUID) catalog.Detail {
	switch in := inbound.(type) {
	case catalog.ProductDetail:
		cur, _ := current.(catalog.ProductDetail)
		out := cur
		out.Description = firstNonEmpty(in.Description, cur.Description)
		out.ShortDescription = firstNonEmpty(in.ShortDescription, cur.ShortDescription)
		if !in.Price.IsZero() {
			out.Price = in.Price
		}
		if in.SalePrice != nil {
			out.SalePrice = in.SalePrice
		}
		if in.StockQuantity != nil {
			out.StockQuantity = in.StockQuantity
		}
		if len(termIDs) > 0 {
			out.TermIDs = termIDs
		}
		return out
	case catalog.TermDetail:
		cur, _ := current.(catalog.TermDetail)
		out := cur
		if in.Taxonomy != "" {
			out.Taxonomy = in.Taxonomy
		}
		out.Slug = firstNonEmpty(in.Slug, cur.Slug)
		out.Description = firstNonEmpty(in.Description, cur.Description)
		return out
	case catalog.CustomerDetail:
		cur, _ := current.(catalog.CustomerDetail)
		return catalog.CustomerDetail{
			Email:     firstNonEmpty(in.Email, cur.Email),
			FirstName: firstNonEmpty(in.FirstName, cur.FirstName),
			LastName:  firstNonEmpty(in.LastName, cur.LastName),
			Phone:     firstNonEmpty(in.Phone, cur.Phone),
		}
	case catalog.CouponDetail:
		cur, _ := current.(catalog.CouponDetail)
		out := cur
		out.Code = firstNonEmpty(in.Code, cur.Code)
		if in.DiscountType != "" {
			out.DiscountType = in.DiscountType
		}
		if !in.Amount.IsZero() {
			out.Amount = in.Amount
		}
		if in.ExpiresAt != nil {
			out.ExpiresAt = in.ExpiresAt
		}
		if in.UsageLimit != nil {
			out.UsageLimit = in.UsageLimit
		}
		return out
	case catalog.OrderDetail:
		cur, _ := current.(catalog.OrderDetail)
		out := in
		out.CustomerID = cur.CustomerID
		if len(in.Lines) == 0 {
			out.Lines = cur.Lines
		}
		return out
	default:
		return current
	}
}

// sameDetail compares details by their stored form
func sameDetail(a, b catalog.Detail) bool {
	ja, errA := catalog.MarshalDetail(a)
	jb, errB := catalog.MarshalDetail(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
