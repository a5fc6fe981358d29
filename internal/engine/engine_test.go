package engine_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/engine"
	"github.com/tamra-invest/ledger-engine/internal/ledger"
	"github.com/tamra-invest/ledger-engine/internal/service/movement"
	"github.com/tamra-invest/ledger-engine/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupEngine(t *testing.T) (*sql.DB, *engine.Engine, *fakeClock) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := newFakeClock()
	return db, engine.New(db, clock.Now), clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func key() *string {
	k := uuid.NewString()
	return &k
}

func assertBalance(t *testing.T, db *sql.DB, accountID uuid.UUID, want string) {
	t.Helper()
	got := testutil.AccountBalance(t, db, accountID)
	assert.True(t, got.Equal(dec(want)), "balance = %s, want %s", got, want)
}

// fundAvailable runs a full deposit saga so the user ends up with released
// funds in the available compartment.
func fundAvailable(t *testing.T, ctx context.Context, eng *engine.Engine, userID uuid.UUID, currency domain.Currency, amount string) {
	t.Helper()

	op, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:   userID,
		Currency: currency,
		Amount:   dec(amount),
	})
	require.NoError(t, err)

	_, err = eng.ReleaseDeposit(ctx, movement.ComplianceRequest{
		UserID:        userID,
		Currency:      currency,
		Amount:        dec(amount),
		TransactionID: op.TransactionID,
	})
	require.NoError(t, err)
}

func TestDepositLifecycle(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	op, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("1000"),
	})
	require.NoError(t, err)
	require.NotNil(t, op.TransactionID)
	assert.Equal(t, domain.OpDepositRecorded, op.Type)
	assert.Equal(t, domain.OperationStatusCompleted, op.Status)
	assert.Equal(t, 2, testutil.CountOperationEntries(t, db, op.ID))

	blocked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyAED))
	require.NoError(t, err)
	clearing, err := eng.EnsureAccount(ctx, domain.ClearingPoolRef(domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, blocked.ID, "1000")
	assertBalance(t, db, clearing.ID, "-1000")

	txn, err := eng.GetTransaction(ctx, *op.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusUnderReview, txn.Status)

	_, err = eng.ReleaseDeposit(ctx, movement.ComplianceRequest{
		UserID:        userID,
		Currency:      domain.CurrencyAED,
		Amount:        dec("1000"),
		TransactionID: op.TransactionID,
	})
	require.NoError(t, err)

	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, blocked.ID, "0")
	assertBalance(t, db, available.ID, "1000")

	txn, err = eng.GetTransaction(ctx, *op.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusAvailable, txn.Status)
}

func TestRejectDeposit(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	op, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:   userID,
		Currency: domain.CurrencyUSD,
		Amount:   dec("500"),
	})
	require.NoError(t, err)

	_, err = eng.RejectDeposit(ctx, movement.ComplianceRequest{
		UserID:        userID,
		Currency:      domain.CurrencyUSD,
		Amount:        dec("500"),
		TransactionID: op.TransactionID,
	})
	assert.ErrorIs(t, err, domain.ErrMissingReason, "rejection without a reason must fail")

	rejectOp, err := eng.RejectDeposit(ctx, movement.ComplianceRequest{
		UserID:        userID,
		Currency:      domain.CurrencyUSD,
		Amount:        dec("500"),
		Reason:        "failed source of funds check",
		TransactionID: op.TransactionID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OpComplianceReject, rejectOp.Type)

	blocked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyUSD))
	require.NoError(t, err)
	clearing, err := eng.EnsureAccount(ctx, domain.ClearingPoolRef(domain.CurrencyUSD))
	require.NoError(t, err)

	assertBalance(t, db, blocked.ID, "0")
	assertBalance(t, db, clearing.ID, "0")

	txn, err := eng.GetTransaction(ctx, *op.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)

	assert.Equal(t, 1, testutil.CountAuditRecords(t, db, rejectOp.ID),
		"the rejection must leave an audit record carrying the reason")
}

func TestDepositIdempotency(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()
	idemKey := key()

	first, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("250"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)

	replay, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("250"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID, "a retry with the same key must return the original operation")

	blocked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyAED))
	require.NoError(t, err)
	assertBalance(t, db, blocked.ID, "250")

	_, err = eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("999"),
		IdempotencyKey: idemKey,
	})
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict,
		"the same key with a different payload is a conflict, not a replay")
}

func TestReleaseDepositIdempotentRetry(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()
	idemKey := key()

	depositOp, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("1000"),
	})
	require.NoError(t, err)

	first, err := eng.ReleaseDeposit(ctx, movement.ComplianceRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("1000"),
		IdempotencyKey: idemKey,
		TransactionID:  depositOp.TransactionID,
	})
	require.NoError(t, err)

	// The release emptied the blocked compartment. A retry must replay the
	// stored operation, not fail on the balance the first call consumed.
	replay, err := eng.ReleaseDeposit(ctx, movement.ComplianceRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("1000"),
		IdempotencyKey: idemKey,
		TransactionID:  depositOp.TransactionID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	blocked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyAED))
	require.NoError(t, err)
	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, blocked.ID, "0")
	assertBalance(t, db, available.ID, "1000")
}

func TestVaultDepositIdempotentRetry(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()
	idemKey := key()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "500")
	pool := testutil.SeedVaultPool(t, db, domain.CurrencyAED)

	first, err := eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:         userID,
		PoolID:         pool.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("500"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)

	// Available is now 0; the retry must replay instead of reporting an
	// insufficient balance.
	replay, err := eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:         userID,
		PoolID:         pool.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("500"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	poolAcct, err := eng.EnsureAccount(ctx, domain.VaultPoolRef(pool.ID, domain.CurrencyAED))
	require.NoError(t, err)
	assertBalance(t, db, poolAcct.ID, "500")
}

func TestVestingIdempotentRetries(t *testing.T) {
	db, eng, clock := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "300")

	lockKey := key()
	lockOp, err := eng.LockVesting(ctx, movement.VestingLockRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("300"),
		Term:           30 * 24 * time.Hour,
		IdempotencyKey: lockKey,
	})
	require.NoError(t, err)

	lockReplay, err := eng.LockVesting(ctx, movement.VestingLockRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("300"),
		Term:           30 * 24 * time.Hour,
		IdempotencyKey: lockKey,
	})
	require.NoError(t, err)
	assert.Equal(t, lockOp.ID, lockReplay.ID)

	locked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentLocked, domain.CurrencyAED))
	require.NoError(t, err)
	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, locked.ID, "300")
	assertBalance(t, db, available.ID, "0")

	clock.Advance(31 * 24 * time.Hour)

	releaseKey := key()
	releaseOp, err := eng.ReleaseVesting(ctx, movement.VestingReleaseRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("300"),
		IdempotencyKey: releaseKey,
	})
	require.NoError(t, err)

	// The first release consumed every matured lock. The retry must still
	// replay the stored operation rather than fail on coverage.
	releaseReplay, err := eng.ReleaseVesting(ctx, movement.VestingReleaseRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("300"),
		IdempotencyKey: releaseKey,
	})
	require.NoError(t, err)
	assert.Equal(t, releaseOp.ID, releaseReplay.ID)

	assertBalance(t, db, locked.ID, "0")
	assertBalance(t, db, available.ID, "300")
}

func TestQueuedWithdrawalIdempotentRetry(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()
	idemKey := key()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "1000")
	pool := testutil.SeedVaultPool(t, db, domain.CurrencyAED)

	// The pool is empty, so the request queues without an Operation. The
	// key lives on the withdrawal row itself.
	first, err := eng.WithdrawFromVault(ctx, movement.VaultRequest{
		UserID:         userID,
		PoolID:         pool.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("500"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	require.True(t, first.Queued)

	replay, err := eng.WithdrawFromVault(ctx, movement.VaultRequest{
		UserID:         userID,
		PoolID:         pool.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("500"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	require.True(t, replay.Queued)
	assert.Equal(t, first.Withdrawal.ID, replay.Withdrawal.ID)
	assert.Equal(t, 1, testutil.CountPendingWithdrawals(t, db, pool.ID),
		"a retried queued request must not enqueue a second withdrawal")

	_, err = eng.WithdrawFromVault(ctx, movement.VaultRequest{
		UserID:         userID,
		PoolID:         pool.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("750"),
		IdempotencyKey: idemKey,
	})
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	// Liquidity arrives and the drain pays the queued request out. The
	// same key now replays the executed result.
	_, err = eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:   userID,
		PoolID:   pool.ID,
		Currency: domain.CurrencyAED,
		Amount:   dec("500"),
	})
	require.NoError(t, err)

	processed, err := eng.ProcessPendingWithdrawals(ctx, pool.ID, 10)
	require.NoError(t, err)
	require.Len(t, processed, 1)

	drained, err := eng.WithdrawFromVault(ctx, movement.VaultRequest{
		UserID:         userID,
		PoolID:         pool.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("500"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	assert.False(t, drained.Queued)
	require.NotNil(t, drained.Operation)
	assert.Equal(t, *processed[0].OperationID, drained.Operation.ID)
	assert.Equal(t, first.Withdrawal.ID, drained.Withdrawal.ID)

	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)
	assertBalance(t, db, available.ID, "1000")
}

func TestRetryMintsNoExtraTransaction(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()
	idemKey := key()

	first, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("250"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)

	replay, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:         userID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("250"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, replay.TransactionID)

	assert.Equal(t, 1, testutil.CountTransactions(t, db, userID),
		"a replayed movement must not leave an orphan transaction")
}

func TestInvestmentReplayIncludesIntent(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()
	idemKey := key()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "1000")
	offering := testutil.SeedOffering(t, db, domain.CurrencyAED, dec("500"))

	first, err := eng.LockInvestment(ctx, movement.InvestmentRequest{
		UserID:         userID,
		OfferingID:     offering.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("800"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	require.NotNil(t, first.Intent)
	assert.Equal(t, domain.IntentStatusPartial, first.Intent.Status)

	replay, err := eng.LockInvestment(ctx, movement.InvestmentRequest{
		UserID:         userID,
		OfferingID:     offering.ID,
		Currency:       domain.CurrencyAED,
		Amount:         dec("800"),
		IdempotencyKey: idemKey,
	})
	require.NoError(t, err)
	require.NotNil(t, replay.Operation)
	require.NotNil(t, replay.Intent, "a replayed investment must carry its intent")

	assert.Equal(t, first.Operation.ID, replay.Operation.ID)
	assert.Equal(t, first.Intent.ID, replay.Intent.ID)
	assert.Equal(t, domain.IntentStatusPartial, replay.Intent.Status)
	assert.True(t, replay.Allocated.Equal(dec("500")), "allocated = %s", replay.Allocated)
	assert.True(t, replay.Intent.Requested.Equal(dec("800")))
}

func TestInvestmentPartialFill(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "2000")
	offering := testutil.SeedOffering(t, db, domain.CurrencyAED, dec("1000"))

	result, err := eng.LockInvestment(ctx, movement.InvestmentRequest{
		UserID:     userID,
		OfferingID: offering.ID,
		Currency:   domain.CurrencyAED,
		Amount:     dec("1500"),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Intent)
	require.NotNil(t, result.Operation)

	assert.True(t, result.Allocated.Equal(dec("1000")), "allocated = %s", result.Allocated)
	assert.Equal(t, domain.IntentStatusPartial, result.Intent.Status)
	assert.True(t, result.Intent.Requested.Equal(dec("1500")))

	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)
	locked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentLocked, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, available.ID, "1000")
	assertBalance(t, db, locked.ID, "1000")

	// Capacity is exhausted: the next request is recorded and rejected
	// without an error and without ledger entries.
	second, err := eng.LockInvestment(ctx, movement.InvestmentRequest{
		UserID:     userID,
		OfferingID: offering.ID,
		Currency:   domain.CurrencyAED,
		Amount:     dec("200"),
	})
	require.NoError(t, err)
	require.NotNil(t, second.Intent)
	assert.Nil(t, second.Operation)
	assert.Equal(t, domain.IntentStatusRejected, second.Intent.Status)
	assert.True(t, second.Allocated.IsZero())

	assertBalance(t, db, available.ID, "1000")
	assertBalance(t, db, locked.ID, "1000")
}

func TestConcurrentInvestmentsSerializeOnCapacity(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()

	userA := uuid.New()
	userB := uuid.New()
	fundAvailable(t, ctx, eng, userA, domain.CurrencyAED, "1000")
	fundAvailable(t, ctx, eng, userB, domain.CurrencyAED, "1000")

	offering := testutil.SeedOffering(t, db, domain.CurrencyAED, dec("1000"))

	var wg sync.WaitGroup
	results := make([]*movement.InvestmentResult, 2)
	errs := make([]error, 2)

	for i, userID := range []uuid.UUID{userA, userB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = eng.LockInvestment(ctx, movement.InvestmentRequest{
				UserID:     userID,
				OfferingID: offering.ID,
				Currency:   domain.CurrencyAED,
				Amount:     dec("800"),
			})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	total := results[0].Allocated.Add(results[1].Allocated)
	assert.True(t, total.Equal(dec("1000")), "total allocated = %s, capacity is 1000", total)
}

func TestVaultQueueAndDrain(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "1000")
	pool := testutil.SeedVaultPool(t, db, domain.CurrencyAED)

	_, err := eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:   userID,
		PoolID:   pool.ID,
		Currency: domain.CurrencyAED,
		Amount:   dec("200"),
	})
	require.NoError(t, err)

	// Pool holds 200, the request wants 500: it must queue, not fail,
	// and must not write any ledger entries.
	result, err := eng.WithdrawFromVault(ctx, movement.VaultRequest{
		UserID:   userID,
		PoolID:   pool.ID,
		Currency: domain.CurrencyAED,
		Amount:   dec("500"),
	})
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Nil(t, result.Operation)
	require.NotNil(t, result.Withdrawal)
	assert.Equal(t, domain.WithdrawalStatusPending, result.Withdrawal.Status)

	poolAcct, err := eng.EnsureAccount(ctx, domain.VaultPoolRef(pool.ID, domain.CurrencyAED))
	require.NoError(t, err)
	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, poolAcct.ID, "200")
	assertBalance(t, db, available.ID, "800")

	// Liquidity arrives; the drain pass executes the queued request.
	_, err = eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:   userID,
		PoolID:   pool.ID,
		Currency: domain.CurrencyAED,
		Amount:   dec("400"),
	})
	require.NoError(t, err)

	processed, err := eng.ProcessPendingWithdrawals(ctx, pool.ID, 10)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, domain.WithdrawalStatusCompleted, processed[0].Status)
	require.NotNil(t, processed[0].OperationID)

	assertBalance(t, db, poolAcct.ID, "100")
	assertBalance(t, db, available.ID, "900")

	again, err := eng.ProcessPendingWithdrawals(ctx, pool.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "a second drain pass has nothing left to do")
}

func TestVaultDrainPreservesFIFO(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "1000")
	pool := testutil.SeedVaultPool(t, db, domain.CurrencyAED)

	_, err := eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:   userID,
		PoolID:   pool.ID,
		Currency: domain.CurrencyAED,
		Amount:   dec("100"),
	})
	require.NoError(t, err)

	// Queue two requests: 500 then 150. Neither is covered yet.
	for _, amount := range []string{"500", "150"} {
		result, err := eng.WithdrawFromVault(ctx, movement.VaultRequest{
			UserID:   userID,
			PoolID:   pool.ID,
			Currency: domain.CurrencyAED,
			Amount:   dec(amount),
		})
		require.NoError(t, err)
		require.True(t, result.Queued)
	}

	// Add enough for the second request but not the first. A strict FIFO
	// queue must not skip ahead.
	_, err = eng.DepositToVault(ctx, movement.VaultRequest{
		UserID:   userID,
		PoolID:   pool.ID,
		Currency: domain.CurrencyAED,
		Amount:   dec("200"),
	})
	require.NoError(t, err)

	processed, err := eng.ProcessPendingWithdrawals(ctx, pool.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, processed, "the head of the queue is uncovered, nothing may drain")
}

func TestVestingLifecycle(t *testing.T) {
	db, eng, clock := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "1000")

	_, err := eng.LockVesting(ctx, movement.VestingLockRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("300"),
		Term:     30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	// An investment lock shares the locked compartment but must never be
	// consumed by a vesting release.
	offering := testutil.SeedOffering(t, db, domain.CurrencyAED, dec("100"))
	_, err = eng.LockInvestment(ctx, movement.InvestmentRequest{
		UserID:     userID,
		OfferingID: offering.ID,
		Currency:   domain.CurrencyAED,
		Amount:     dec("100"),
	})
	require.NoError(t, err)

	locked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentLocked, domain.CurrencyAED))
	require.NoError(t, err)
	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, locked.ID, "400")
	assertBalance(t, db, available.ID, "600")

	_, err = eng.ReleaseVesting(ctx, movement.VestingReleaseRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("300"),
	})
	assert.ErrorIs(t, err, domain.ErrNoMaturedLocks, "nothing has matured yet")

	clock.Advance(31 * 24 * time.Hour)

	_, err = eng.ReleaseVesting(ctx, movement.VestingReleaseRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("400"),
	})
	assert.ErrorIs(t, err, domain.ErrNoMaturedLocks,
		"matured vesting coverage is 300, the investment lock does not count")

	_, err = eng.ReleaseVesting(ctx, movement.VestingReleaseRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("300"),
	})
	require.NoError(t, err)

	assertBalance(t, db, locked.ID, "100")
	assertBalance(t, db, available.ID, "900")
}

func TestReverseOperation(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	depositOp, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("1000"),
	})
	require.NoError(t, err)

	releaseOp, err := eng.ReleaseDeposit(ctx, movement.ComplianceRequest{
		UserID:        userID,
		Currency:      domain.CurrencyAED,
		Amount:        dec("1000"),
		TransactionID: depositOp.TransactionID,
	})
	require.NoError(t, err)

	_, err = eng.ReverseOperation(ctx, movement.ReversalRequest{
		OperationID: releaseOp.ID,
	})
	assert.ErrorIs(t, err, domain.ErrMissingReason)

	reversal, err := eng.ReverseOperation(ctx, movement.ReversalRequest{
		OperationID: releaseOp.ID,
		Reason:      "released against the wrong review outcome",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OpReversal, reversal.Type)

	blocked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyAED))
	require.NoError(t, err)
	available, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED))
	require.NoError(t, err)

	assertBalance(t, db, blocked.ID, "1000")
	assertBalance(t, db, available.ID, "0")

	txn, err := eng.GetTransaction(ctx, *depositOp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusReversed, txn.Status)

	// The original rows are untouched: correction happened through new
	// entries only.
	assert.Equal(t, 2, testutil.CountOperationEntries(t, db, releaseOp.ID))
	original, err := eng.GetOperation(ctx, releaseOp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusCompleted, original.Status)
}

func TestAdjustOperation(t *testing.T) {
	db, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	depositOp, err := eng.RecordDeposit(ctx, movement.DepositRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("1000"),
	})
	require.NoError(t, err)

	blocked, err := eng.EnsureAccount(ctx, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyAED))
	require.NoError(t, err)
	clearing, err := eng.EnsureAccount(ctx, domain.ClearingPoolRef(domain.CurrencyAED))
	require.NoError(t, err)

	// The deposit was recorded 10 over; correct by moving 10 back.
	adjustment, err := eng.AdjustOperation(ctx, movement.AdjustmentRequest{
		OperationID: depositOp.ID,
		Reason:      "provider reported 990, recorded 1000",
		Entries: []ledger.EntryInput{
			{AccountID: blocked.ID, EntryType: domain.EntryTypeDebit, Amount: dec("-10"), Currency: domain.CurrencyAED},
			{AccountID: clearing.ID, EntryType: domain.EntryTypeCredit, Amount: dec("10"), Currency: domain.CurrencyAED},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OpAdjustment, adjustment.Type)

	assertBalance(t, db, blocked.ID, "990")
	assertBalance(t, db, clearing.ID, "-990")

	// Unbalanced adjustments never reach the ledger.
	_, err = eng.AdjustOperation(ctx, movement.AdjustmentRequest{
		OperationID: depositOp.ID,
		Reason:      "bad correction",
		Entries: []ledger.EntryInput{
			{AccountID: blocked.ID, EntryType: domain.EntryTypeDebit, Amount: dec("-10"), Currency: domain.CurrencyAED},
			{AccountID: clearing.ID, EntryType: domain.EntryTypeCredit, Amount: dec("5"), Currency: domain.CurrencyAED},
		},
	})
	assert.ErrorIs(t, err, domain.ErrUnbalancedOperation)
	assertBalance(t, db, blocked.ID, "990")
}

func TestUnknownAccountReadsZero(t *testing.T) {
	_, eng, _ := setupEngine(t)

	balance, err := eng.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestInsufficientBalance(t *testing.T) {
	_, eng, _ := setupEngine(t)
	ctx := testutil.ActorContext()
	userID := uuid.New()

	fundAvailable(t, ctx, eng, userID, domain.CurrencyAED, "100")

	_, err := eng.LockVesting(ctx, movement.VestingLockRequest{
		UserID:   userID,
		Currency: domain.CurrencyAED,
		Amount:   dec("150"),
		Term:     24 * time.Hour,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}
