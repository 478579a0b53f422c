package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockReconciler is a mock implementation of Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, entityID uuid.UUID, sc shared.SyncContext) (*Report, error) {
	args := m.Called(ctx, entityID, sc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Report), args.Error(1)
}

// MockRelationFinder is a mock implementation of catalog.RelationFinder
type MockRelationFinder struct {
	mock.Mock
}

func (m *MockRelationFinder) FindDependents(ctx context.Context, referencedID uuid.UUID) ([]catalog.RelationEdge, error) {
	args := m.Called(ctx, referencedID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.RelationEdge), args.Error(1)
}

func cascadeSync(origin uuid.UUID) func(shared.SyncContext) bool {
	return func(sc shared.SyncContext) bool {
		return sc.Cascade && sc.Trigger == shared.SyncTriggerCascade && sc.EventID != origin
	}
}

func TestCascadePropagator_ReconcilesEachDependentOnce(t *testing.T) {
	ctx := context.Background()
	term := uuid.New()
	a, b := uuid.New(), uuid.New()
	relations := new(MockRelationFinder)
	relations.On("FindDependents", ctx, term).Return([]catalog.RelationEdge{
		{DependentID: a, ReferencedID: term},
		{DependentID: b, ReferencedID: term},
		{DependentID: a, ReferencedID: term},
		{DependentID: term, ReferencedID: term},
	}, nil)

	sc := shared.NewSyncContext(shared.SyncTriggerAdmin)
	target := new(MockReconciler)
	target.On("Reconcile", ctx, a, mock.MatchedBy(cascadeSync(sc.EventID))).Return(&Report{}, nil).Once()
	target.On("Reconcile", ctx, b, mock.MatchedBy(cascadeSync(sc.EventID))).Return(&Report{}, nil).Once()

	n, err := NewCascadePropagator(relations, nil, nil).Propagate(ctx, term, sc, target)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	target.AssertExpectations(t)
}

func TestCascadePropagator_CascadedChangeStops(t *testing.T) {
	relations := new(MockRelationFinder)
	target := new(MockReconciler)
	sc := shared.NewSyncContext(shared.SyncTriggerAdmin).ForCascade(uuid.New())

	n, err := NewCascadePropagator(relations, nil, nil).Propagate(context.Background(), uuid.New(), sc, target)

	require.NoError(t, err)
	assert.Zero(t, n)
	relations.AssertNotCalled(t, "FindDependents", mock.Anything, mock.Anything)
	target.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything, mock.Anything)
}

func TestCascadePropagator_FailingDependentDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	term := uuid.New()
	a, b := uuid.New(), uuid.New()
	relations := new(MockRelationFinder)
	relations.On("FindDependents", ctx, term).Return([]catalog.RelationEdge{
		{DependentID: a, ReferencedID: term},
		{DependentID: b, ReferencedID: term},
	}, nil)
	target := new(MockReconciler)
	target.On("Reconcile", ctx, a, mock.Anything).Return(nil, errors.New("lock wait cancelled"))
	target.On("Reconcile", ctx, b, mock.Anything).Return(&Report{}, nil)

	n, err := NewCascadePropagator(relations, nil, nil).Propagate(ctx, term, shared.NewSyncContext(shared.SyncTriggerAdmin), target)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	target.AssertNumberOfCalls(t, "Reconcile", 2)
}

func TestCascadePropagator_LookupError(t *testing.T) {
	ctx := context.Background()
	term := uuid.New()
	relations := new(MockRelationFinder)
	relations.On("FindDependents", ctx, term).Return(nil, errors.New("connection refused"))

	_, err := NewCascadePropagator(relations, nil, nil).Propagate(ctx, term, shared.NewSyncContext(shared.SyncTriggerAdmin), new(MockReconciler))
	assert.ErrorContains(t, err, "connection refused")
}

func TestCascadePropagator_DerivedEventIDsAreStable(t *testing.T) {
	sc := shared.NewSyncContext(shared.SyncTriggerAdmin)
	dep := uuid.New()

	assert.Equal(t, sc.ForCascade(dep).EventID, sc.ForCascade(dep).EventID)
	assert.NotEqual(t, sc.ForCascade(dep).EventID, sc.ForCascade(uuid.New()).EventID)
}
