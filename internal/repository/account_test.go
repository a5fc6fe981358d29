package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamra-invest/ledger-engine/internal/domain"
	"github.com/tamra-invest/ledger-engine/internal/repository"
	"github.com/tamra-invest/ledger-engine/internal/testutil"
)

func getOrCreate(t *testing.T, db *sql.DB, ref domain.AccountRef) *domain.Account {
	t.Helper()

	repo := repository.NewAccountRepository(db)
	var account *domain.Account
	err := repository.NewDB(db).RunInTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		account, err = repo.GetOrCreate(context.Background(), tx, ref)
		return err
	})
	require.NoError(t, err)
	return account
}

func TestAccountGetOrCreate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userID := uuid.New()

	ref := domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyAED)

	first := getOrCreate(t, db, ref)
	second := getOrCreate(t, db, ref)
	assert.Equal(t, first.ID, second.ID, "same natural key must resolve to the same account")

	blocked := getOrCreate(t, db, domain.UserAccountRef(userID, domain.CompartmentBlocked, domain.CurrencyAED))
	assert.NotEqual(t, first.ID, blocked.ID, "compartments are distinct accounts")

	usd := getOrCreate(t, db, domain.UserAccountRef(userID, domain.CompartmentAvailable, domain.CurrencyUSD))
	assert.NotEqual(t, first.ID, usd.ID, "currencies are distinct accounts")
}

func TestAccountGetOrCreate_NullOwnerKey(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// System pools have no owner. NULL owner_id must still be treated as
	// one key, not as infinitely many distinct rows.
	first := getOrCreate(t, db, domain.ClearingPoolRef(domain.CurrencyAED))
	second := getOrCreate(t, db, domain.ClearingPoolRef(domain.CurrencyAED))
	assert.Equal(t, first.ID, second.ID)
	assert.Nil(t, first.OwnerID)

	poolID := uuid.New()
	vault := getOrCreate(t, db, domain.VaultPoolRef(poolID, domain.CurrencyAED))
	assert.NotEqual(t, first.ID, vault.ID, "scoped pools are distinct from the clearing pool")

	sameVault := getOrCreate(t, db, domain.VaultPoolRef(poolID, domain.CurrencyAED))
	assert.Equal(t, vault.ID, sameVault.ID)
}
