package merge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/storage"
)

func newTestMerger(t *testing.T) *Merger {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestMerger_Apply(t *testing.T) {
	m := newTestMerger(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Apply(ctx, "bank-1", &model.MatchAnnotation{
		MatchedTargetID: "inv-1",
		StrategyID:      model.StrategyFuzzyName,
		Confidence:      0.6,
		ClassifiedAt:    at,
	}))

	// A second, stronger result for the same record upgrades it.
	require.NoError(t, m.Apply(ctx, "bank-1", &model.MatchAnnotation{
		MatchedTargetID: "inv-1",
		StrategyID:      model.StrategyExternalID,
		Confidence:      0.97,
		ClassifiedAt:    at.Add(time.Hour),
		Reconciled:      true,
	}))

	got, err := m.store.GetAnnotation(ctx, "bank-1")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyExternalID, got.StrategyID)
	assert.True(t, got.Reconciled)
}

func TestMerger_ApplyAll_ContinuesPastFailures(t *testing.T) {
	m := newTestMerger(t)
	ctx := context.Background()

	annotations := map[string]*model.MatchAnnotation{
		"bank-2": {StrategyID: model.StrategyCatchAll, AccountCode: model.CategoryOtherIncome},
		"bank-1": {StrategyID: model.StrategyCatchAll, AccountCode: model.CategoryOtherIncome},
		"":       {StrategyID: model.StrategyCatchAll, AccountCode: model.CategoryOtherIncome},
	}

	errs := m.ApplyAll(ctx, annotations)
	require.Len(t, errs, 1, "the empty id fails, the rest are written")

	for _, id := range []string{"bank-1", "bank-2"} {
		got, err := m.store.GetAnnotation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StrategyCatchAll, got.StrategyID, "record %s", id)
	}
}

func TestMerger_ApplyAll_CanceledContext(t *testing.T) {
	m := newTestMerger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := m.ApplyAll(ctx, map[string]*model.MatchAnnotation{
		"bank-1": {StrategyID: model.StrategyCatchAll},
	})
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestMerger_LinkBankToInvoices(t *testing.T) {
	m := newTestMerger(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	errs := m.LinkBankToInvoices(ctx, "bank-1", []string{"inv-1", "inv-2"}, model.StrategyManual, 1.0, at)
	require.Empty(t, errs)

	bank, err := m.store.GetAnnotation(ctx, "bank-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-1", "inv-2"}, bank.LinkedInvoiceIDs)
	assert.True(t, bank.Reconciled)
	assert.True(t, bank.ManuallyConfirmed)

	for _, invID := range []string{"inv-1", "inv-2"} {
		inv, err := m.store.GetAnnotation(ctx, invID)
		require.NoError(t, err)
		assert.Equal(t, "bank-1", inv.MatchedTargetID, "invoice %s points back at the bank entry", invID)
		assert.True(t, inv.Reconciled)
		assert.True(t, inv.ManuallyConfirmed)
	}

	// A later automated result must not unseat the manual link.
	require.NoError(t, m.Apply(ctx, "bank-1", &model.MatchAnnotation{
		MatchedTargetID: "inv-9",
		StrategyID:      model.StrategyExternalID,
		Confidence:      0.97,
		ClassifiedAt:    at.Add(time.Hour),
	}))
	bank, err = m.store.GetAnnotation(ctx, "bank-1")
	require.NoError(t, err)
	assert.Empty(t, bank.MatchedTargetID)
	assert.Equal(t, model.StrategyManual, bank.StrategyID)
}
