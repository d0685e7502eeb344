package kuji_test

import (
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/require"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/custody"
	"github.com/vreid/kuji/internal/pkg/kuji"
	bolt "go.etcd.io/bbolt"
)

func openDatabase(t *testing.T) *common.DatabaseService {
	t.Helper()

	i := do.New()
	do.ProvideNamedValue(i, "data-dir", t.TempDir())

	databaseService, err := common.NewDatabaseService(i)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	return databaseService
}

func TestListingRoundTrip(t *testing.T) {
	t.Parallel()

	databaseService := openDatabase(t)

	var first, second uint64

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		var err error

		first, err = kuji.NextListingID(tx)
		require.NoError(t, err)

		second, err = kuji.NextListingID(tx)
		require.NoError(t, err)

		return kuji.PutListing(tx, &kuji.Listing{
			ID:             first,
			Custodian:      "alice",
			Asset:          custody.Ref{Collection: "cats", Token: "42"},
			WagerAmount:    1_000_000,
			WinProbability: 20_000_000,
		})
	})
	require.NoError(t, err)

	require.Less(t, first, second)

	err = databaseService.DB.View(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, first)
		require.NoError(t, err)
		require.NotNil(t, listing)

		require.Equal(t, "alice", listing.Custodian)
		require.Equal(t, custody.Ref{Collection: "cats", Token: "42"}, listing.Asset)
		require.Equal(t, uint64(1_000_000), listing.WagerAmount)
		require.False(t, listing.Pending())

		missing, err := kuji.GetListing(tx, second)
		require.NoError(t, err)
		require.Nil(t, missing)

		return nil
	})
	require.NoError(t, err)

	err = databaseService.DB.Update(func(tx *bolt.Tx) error {
		return kuji.DeleteListing(tx, first)
	})
	require.NoError(t, err)

	err = databaseService.DB.View(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, first)
		require.NoError(t, err)
		require.Nil(t, listing)

		return nil
	})
	require.NoError(t, err)
}

func TestPendingBetRoundTrip(t *testing.T) {
	t.Parallel()

	databaseService := openDatabase(t)

	bet := &kuji.PendingBet{
		RequestID: "req-1",
		ListingID: 7,
		Bettor:    "bob",
	}

	err := databaseService.DB.Update(func(tx *bolt.Tx) error {
		return kuji.PutPendingBet(tx, bet)
	})
	require.NoError(t, err)

	err = databaseService.DB.View(func(tx *bolt.Tx) error {
		found, err := kuji.GetPendingBet(tx, "req-1")
		require.NoError(t, err)
		require.Equal(t, bet, found)

		byListing, err := kuji.PendingBetByListing(tx, 7)
		require.NoError(t, err)
		require.Equal(t, bet, byListing)

		none, err := kuji.PendingBetByListing(tx, 8)
		require.NoError(t, err)
		require.Nil(t, none)

		return nil
	})
	require.NoError(t, err)
}

func TestSeedConfigKeepsExisting(t *testing.T) {
	t.Parallel()

	databaseService := openDatabase(t)

	initial := kuji.Config{
		Admin:         "admin",
		RakePercent:   5_000_000,
		RakeRecipient: "treasury",
		Oracle:        kuji.OracleParams{KeyHash: "key", Words: 1},
	}

	err := kuji.SeedConfig(databaseService.DB, initial)
	require.NoError(t, err)

	// A later seed with different values must not clobber admin changes.
	changed := initial
	changed.RakePercent = 1

	err = kuji.SeedConfig(databaseService.DB, changed)
	require.NoError(t, err)

	err = databaseService.DB.View(func(tx *bolt.Tx) error {
		config, err := kuji.GetConfig(tx)
		require.NoError(t, err)
		require.NotNil(t, config)
		require.Equal(t, uint64(5_000_000), config.RakePercent)

		return nil
	})
	require.NoError(t, err)
}

func TestSeedConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	databaseService := openDatabase(t)

	err := kuji.SeedConfig(databaseService.DB, kuji.Config{})
	require.Error(t, err)
}
