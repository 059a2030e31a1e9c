package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/infrastructure/storage"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

func newTestEngine(t *testing.T) (*Engine, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	return NewEngine(repo, DefaultConfig(), nil), repo
}

func saveBankTx(t *testing.T, repo *storage.MockRepository, bankID string, day int, amount int64) *model.BankTransaction {
	t.Helper()
	tx := &model.BankTransaction{
		AccountID:         "acct-1",
		BankTransactionID: bankID,
		PostDate:          dates.New(2024, time.June, day),
		AmountMills:       amount,
	}
	_, err := repo.SaveBankTransaction(tx)
	require.NoError(t, err)
	return tx
}

func saveOrder(t *testing.T, repo *storage.MockRepository, orderID string, day int, amount int64) *model.MerchantOrder {
	t.Helper()
	o := &model.MerchantOrder{
		MerchantID:  "merch-1",
		OrderID:     orderID,
		OrderDate:   dates.New(2024, time.June, day),
		AmountMills: amount,
	}
	_, err := repo.SaveMerchantOrder(o)
	require.NoError(t, err)
	return o
}

func TestReconcile_ClosestDateWins(t *testing.T) {
	engine, repo := newTestEngine(t)

	// Bank posted 2024-06-10; one candidate two days out, one a single day out.
	saveOrder(t, repo, "ORD-FAR", 8, 12345)
	saveOrder(t, repo, "ORD-NEAR", 11, 12345)

	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, result.Outcome)
	require.NotNil(t, result.Order)
	assert.Equal(t, "ORD-NEAR", result.Order.OrderID)
	assert.Equal(t, 1, result.DateDiffDays)
}

func TestReconcile_SpecExactnessCase(t *testing.T) {
	// amount 12345, post date 2024-06-10, orders on 06-08 and 06-12 with the
	// same amount: the 06-08 order wins on smaller date delta... both are two
	// days away, so the earlier date wins.
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-EARLY", 8, 12345)
	saveOrder(t, repo, "ORD-LATE", 12, 12345)
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, result.Outcome)
	require.NotNil(t, result.Order)
	assert.Equal(t, "ORD-EARLY", result.Order.OrderID)
}

func TestReconcile_AmountMustMatchExactly(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-OFF", 10, 12346) // one mill off
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCandidate, result.Outcome)
	assert.Nil(t, result.Order)
}

func TestReconcile_OutsideWindowIgnored(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-OLD", 4, 12345) // 6 days before, window is 5
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCandidate, result.Outcome)
}

func TestReconcile_NoCandidate_IsNeedsSync(t *testing.T) {
	engine, repo := newTestEngine(t)
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCandidate, result.Outcome)
	// Incomplete evidence, not ambiguity: the record stays NEEDS_SYNC.
	assert.Equal(t, model.SyncNeedsSync, result.AppTransaction.SyncState)
}

func TestReconcile_ExactDateTie_IsAmbiguous(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-A", 12, 12345)
	saveOrder(t, repo, "ORD-B", 12, 12345)
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, result.Outcome)
	assert.Nil(t, result.Order)
	assert.Equal(t, model.SyncNeedsRetry, result.AppTransaction.SyncState)

	// The bank transaction was not linked to an arbitrary pick.
	got, err := repo.GetBankTransaction(tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OrderID)
}

func TestReconcile_EquallyClose_EarlierDateWins(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-BEFORE", 8, 12345) // 2 days before
	saveOrder(t, repo, "ORD-AFTER", 12, 12345) // 2 days after
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, result.Outcome)
	assert.Equal(t, "ORD-BEFORE", result.Order.OrderID)
}

func TestReconcile_ExistingLinkSkipsSearch(t *testing.T) {
	engine, repo := newTestEngine(t)

	linked := saveOrder(t, repo, "ORD-LINKED", 1, 99999)
	// A better-looking candidate exists, but the link wins.
	saveOrder(t, repo, "ORD-TEMPTING", 10, 12345)

	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)
	require.NoError(t, repo.LinkBankTransactionToOrder(tx.ID, linked.ID))
	tx.OrderID = linked.ID

	result, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, result.Outcome)
	assert.Equal(t, "ORD-LINKED", result.Order.OrderID)
}

func TestReconcile_DanglingLinkIsInvariantViolation(t *testing.T) {
	engine, repo := newTestEngine(t)

	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)
	tx.OrderID = "no-such-order"

	_, err := engine.Reconcile(tx)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvariantViolation(err))
}

func TestReconcile_CreatesAppTransactionOnce(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-1", 10, 12345)
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)

	first, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, model.SyncNeedsSync, first.AppTransaction.SyncState)
	assert.Equal(t, "ORD-1", first.AppTransaction.MerchantTransactionID)

	// Second pass is idempotent: same app transaction, same state.
	second, err := engine.Reconcile(tx)
	require.NoError(t, err)
	assert.Equal(t, first.AppTransaction.ID, second.AppTransaction.ID)
	assert.Equal(t, model.SyncNeedsSync, second.AppTransaction.SyncState)

	stats, err := repo.SyncStateStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats[model.SyncNeedsSync])
}

func TestReconcilePending_LinksEverything(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-1", 9, 1000)
	saveOrder(t, repo, "ORD-2", 11, 2000)
	saveBankTx(t, repo, "BANK-1", 10, 1000)
	saveBankTx(t, repo, "BANK-2", 10, 2000)
	saveBankTx(t, repo, "BANK-3", 10, 3000) // no candidate

	results, err := engine.ReconcilePending("acct-1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	outcomes := map[Outcome]int{}
	for _, r := range results {
		outcomes[r.Outcome]++
	}
	assert.Equal(t, 2, outcomes[OutcomeMatched])
	assert.Equal(t, 1, outcomes[OutcomeNoCandidate])

	unlinked, err := repo.ListUnlinkedBankTransactions("acct-1")
	require.NoError(t, err)
	assert.Len(t, unlinked, 1)
}

func TestRecordPushResult_FullLifecycle(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-1", 10, 12345)
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)
	_, err := engine.Reconcile(tx)
	require.NoError(t, err)

	// Transient failure first, then a successful retry.
	require.NoError(t, engine.RecordPushResult("BANK-1", "", PushTransientFailure))

	appTx, err := repo.GetAppTransactionByNaturalKey("BANK-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncNeedsRetry, appTx.SyncState)

	require.NoError(t, engine.RecordPushResult("BANK-1", "ledger-tx-9", PushSucceeded))

	appTx, err = repo.GetAppTransactionByNaturalKey("BANK-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncSucceeded, appTx.SyncState)
	assert.Equal(t, "ledger-tx-9", appTx.LedgerTransactionID)

	// Terminal: a further outcome is an invariant violation.
	err = engine.RecordPushResult("BANK-1", "", PushTransientFailure)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvariantViolation(err))
}

func TestRecordPushResult_RetryExhaustion(t *testing.T) {
	engine, repo := newTestEngine(t)

	saveOrder(t, repo, "ORD-1", 10, 12345)
	tx := saveBankTx(t, repo, "BANK-1", 10, 12345)
	_, err := engine.Reconcile(tx)
	require.NoError(t, err)

	require.NoError(t, engine.RecordPushResult("BANK-1", "", PushTransientFailure))
	require.NoError(t, engine.RecordPushResult("BANK-1", "", PushPermanentFailure))

	appTx, err := repo.GetAppTransactionByNaturalKey("BANK-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncFailed, appTx.SyncState)
}

func TestRecordPushResult_UnknownAppTransaction(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.RecordPushResult("missing", "", PushSucceeded)
	require.Error(t, err)
	assert.True(t, syncerr.IsInvariantViolation(err))
}
