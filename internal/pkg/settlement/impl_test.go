package settlement_test

import (
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/custody"
	"github.com/vreid/kuji/internal/pkg/kuji"
	"github.com/vreid/kuji/internal/pkg/oracle"
	"github.com/vreid/kuji/internal/pkg/settlement"
	bolt "go.etcd.io/bbolt"
)

const (
	vault     = "kuji-vault"
	oracleKey = "oracle-key"
)

func newService(t *testing.T) (*settlement.SettlementService, *custody.Memory, chan kuji.Event) {
	t.Helper()

	i := do.New()
	do.ProvideNamedValue(i, "data-dir", t.TempDir())

	databaseService, err := common.NewDatabaseService(i)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	err = kuji.SeedConfig(databaseService.DB, kuji.Config{
		Admin:         "admin",
		RakePercent:   5_000_000,
		RakeRecipient: "treasury",
		Oracle:        kuji.OracleParams{KeyHash: oracleKey, Words: 1},
	})
	require.NoError(t, err)

	assetCustody := custody.NewMemory()
	events := make(chan kuji.Event, 16)

	service := &settlement.SettlementService{
		DatabaseService: databaseService,
		Custody:         assetCustody,
		Vault:           vault,
		EventSink:       events,
	}

	return service, assetCustody, events
}

// seedPendingBet stores a locked listing, its escrowed asset and the bet
// continuation, the state placeBet leaves behind.
func seedPendingBet(t *testing.T, service *settlement.SettlementService, assetCustody *custody.Memory) custody.Ref {
	t.Helper()

	ref := custody.Ref{Collection: "cats", Token: "42"}
	assetCustody.Mint(ref, vault)

	err := service.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		err := kuji.PutListing(tx, &kuji.Listing{
			ID:             1,
			Custodian:      "alice",
			Asset:          ref,
			WagerAmount:    1_000_000,
			WinProbability: 20_000_000, // 20 %
			State:          kuji.ListingAwaitingRandomness,
		})
		if err != nil {
			return err
		}

		return kuji.PutPendingBet(tx, &kuji.PendingBet{
			RequestID: "req-1",
			ListingID: 1,
			Bettor:    "bob",
		})
	})
	require.NoError(t, err)

	return ref
}

func signedFulfillment(requestID string, words ...uint64) oracle.Fulfillment {
	return oracle.Fulfillment{
		RequestID:   requestID,
		RandomWords: words,
		Signature:   oracle.SignFulfillment(oracleKey, requestID, words),
	}
}

func TestFulfillWin(t *testing.T) {
	t.Parallel()

	service, assetCustody, events := newService(t)
	ref := seedPendingBet(t, service, assetCustody)

	// Outcome 10 % against a 20 % listing: the bettor takes the asset.
	result, err := service.Fulfill(signedFulfillment("req-1", 10_000_000))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Settled)
	assert.True(t, result.Won)
	assert.Equal(t, uint64(10_000_000), result.Outcome)

	owner, err := assetCustody.OwnerOf(ref)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)

	err = service.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, 1)
		require.NoError(t, err)
		assert.Nil(t, listing)

		bet, err := kuji.GetPendingBet(tx, "req-1")
		require.NoError(t, err)
		assert.Nil(t, bet)

		return nil
	})
	require.NoError(t, err)

	event := <-events
	assert.Equal(t, kuji.EventBetSettled, event.Type)
	require.NotNil(t, event.Won)
	assert.True(t, *event.Won)
}

func TestFulfillLossReopensListing(t *testing.T) {
	t.Parallel()

	service, assetCustody, events := newService(t)
	ref := seedPendingBet(t, service, assetCustody)

	// Outcome 50 % against a 20 % listing: the house keeps the asset.
	result, err := service.Fulfill(signedFulfillment("req-1", 50_000_000))
	require.NoError(t, err)

	assert.True(t, result.Settled)
	assert.False(t, result.Won)

	owner, err := assetCustody.OwnerOf(ref)
	require.NoError(t, err)
	assert.Equal(t, vault, owner)

	err = service.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, 1)
		require.NoError(t, err)
		require.NotNil(t, listing)
		assert.Equal(t, kuji.ListingOpen, listing.State)

		bet, err := kuji.GetPendingBet(tx, "req-1")
		require.NoError(t, err)
		assert.Nil(t, bet)

		return nil
	})
	require.NoError(t, err)

	event := <-events
	require.NotNil(t, event.Won)
	assert.False(t, *event.Won)
}

func TestFulfillBoundaryOutcomeWins(t *testing.T) {
	t.Parallel()

	service, assetCustody, _ := newService(t)
	seedPendingBet(t, service, assetCustody)

	// Outcome exactly equal to the win probability wins.
	result, err := service.Fulfill(signedFulfillment("req-1", 20_000_000))
	require.NoError(t, err)

	assert.True(t, result.Won)
}

func TestFulfillNormalizesRawWords(t *testing.T) {
	t.Parallel()

	service, assetCustody, _ := newService(t)
	seedPendingBet(t, service, assetCustody)

	// A huge raw word reduces modulo 100_000_001 before comparison.
	raw := uint64(10_000_000 + 7*(kuji.ProbabilityMax+1))

	result, err := service.Fulfill(signedFulfillment("req-1", raw))
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000_000), result.Outcome)
	assert.True(t, result.Won)
}

func TestFulfillUnknownRequestIsNoop(t *testing.T) {
	t.Parallel()

	service, _, _ := newService(t)

	result, err := service.Fulfill(signedFulfillment("req-ghost", 1))
	require.NoError(t, err)

	assert.False(t, result.Settled)
}

func TestFulfillDuplicateIsNoop(t *testing.T) {
	t.Parallel()

	service, assetCustody, _ := newService(t)
	seedPendingBet(t, service, assetCustody)

	first, err := service.Fulfill(signedFulfillment("req-1", 50_000_000))
	require.NoError(t, err)
	assert.True(t, first.Settled)

	second, err := service.Fulfill(signedFulfillment("req-1", 10_000_000))
	require.NoError(t, err)
	assert.False(t, second.Settled)
}

func TestFulfillRejectsForgedSignature(t *testing.T) {
	t.Parallel()

	service, assetCustody, _ := newService(t)
	ref := seedPendingBet(t, service, assetCustody)

	forged := oracle.Fulfillment{
		RequestID:   "req-1",
		RandomWords: []uint64{0},
		Signature:   oracle.SignFulfillment("wrong-key", "req-1", []uint64{0}),
	}

	_, err := service.Fulfill(forged)
	assert.ErrorIs(t, err, kuji.ErrUnauthorized)

	// The bet stays pending; only the real oracle may settle it.
	err = service.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		bet, err := kuji.GetPendingBet(tx, "req-1")
		require.NoError(t, err)
		require.NotNil(t, bet)

		return nil
	})
	require.NoError(t, err)

	owner, err := assetCustody.OwnerOf(ref)
	require.NoError(t, err)
	assert.Equal(t, vault, owner)
}

func TestFulfillRejectsEmptyWords(t *testing.T) {
	t.Parallel()

	service, _, _ := newService(t)

	_, err := service.Fulfill(signedFulfillment("req-1"))
	require.Error(t, err)
}

func TestFulfillAtomicUnderCustodyFailure(t *testing.T) {
	t.Parallel()

	service, assetCustody, _ := newService(t)
	seedPendingBet(t, service, assetCustody)

	assetCustody.TransferErr = custody.ErrTransferUnapproved

	_, err := service.Fulfill(signedFulfillment("req-1", 10_000_000))
	require.Error(t, err)

	// No partial settlement: listing and bet both survive untouched.
	err = service.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, 1)
		require.NoError(t, err)
		require.NotNil(t, listing)
		assert.True(t, listing.Pending())

		bet, err := kuji.GetPendingBet(tx, "req-1")
		require.NoError(t, err)
		require.NotNil(t, bet)

		return nil
	})
	require.NoError(t, err)
}
