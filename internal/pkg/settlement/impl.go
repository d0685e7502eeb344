package settlement

import (
	"fmt"
	"net/http"

	log "github.com/inconshreveable/log15"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/custody"
	"github.com/vreid/kuji/internal/pkg/kuji"
	"github.com/vreid/kuji/internal/pkg/oracle"
	bolt "go.etcd.io/bbolt"
)

var slog = log.New("module", "kuji.settlement")

// Result is the outcome of one fulfillment.
type Result struct {
	// Settled is false for unknown or already-settled request IDs.
	Settled bool

	Won     bool
	Outcome uint64

	Listing kuji.Listing
	Bet     kuji.PendingBet
}

// SettlementService consumes oracle fulfillments and finalizes bets: the
// asset goes to a winning bettor, a losing bet reopens the listing.
type SettlementService struct {
	DatabaseService *common.DatabaseService
	Custody         custody.Custody

	Vault string

	EventSink chan<- kuji.Event
}

func NewSettlementService(i do.Injector) (*SettlementService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	assetCustody := do.MustInvoke[custody.Custody](i)
	vault := do.MustInvokeNamed[string](i, "vault")
	eventSink := do.MustInvokeNamed[chan<- kuji.Event](i, "event-sink")

	result := &SettlementService{
		DatabaseService: databaseService,
		Custody:         assetCustody,
		Vault:           vault,
		EventSink:       eventSink,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		oracleGroup := apiGroup.Group("/oracle")

		oracleGroup.POST("/fulfill", result.PostFulfillment)
	})

	return result, nil
}

// Fulfill settles the bet behind a signed oracle callback.
//
// The signature check runs against the configured oracle key before anything
// mutates; an unknown request ID is a no-op so a duplicated callback cannot
// settle twice.
func (s *SettlementService) Fulfill(f oracle.Fulfillment) (*Result, error) {
	if len(f.RandomWords) == 0 {
		return nil, fmt.Errorf("%w: fulfillment carries no random words", kuji.ErrInvalidReference)
	}

	result := &Result{}

	var events []kuji.Event

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		config, err := kuji.MustConfig(tx)
		if err != nil {
			return err
		}

		if !oracle.VerifyFulfillment(config.Oracle.KeyHash, f) {
			return fmt.Errorf("%w: fulfillment signature mismatch", kuji.ErrUnauthorized)
		}

		bet, err := kuji.GetPendingBet(tx, f.RequestID)
		if err != nil {
			return err
		}

		if bet == nil {
			return nil
		}

		err = kuji.DeletePendingBet(tx, f.RequestID)
		if err != nil {
			return err
		}

		listing, err := kuji.GetListing(tx, bet.ListingID)
		if err != nil {
			return err
		}

		if listing == nil {
			return fmt.Errorf("%w: pending bet %s references listing %d",
				kuji.ErrInvalidReference, f.RequestID, bet.ListingID)
		}

		outcome := kuji.Normalize(f.RandomWords[0])
		won := kuji.Wins(outcome, listing.WinProbability)

		if won {
			err = kuji.DeleteListing(tx, listing.ID)
			if err != nil {
				return err
			}

			// A failed asset transfer aborts the whole settlement; the
			// pending bet survives for administrative recovery.
			err = s.Custody.Transfer(listing.Asset, s.Vault, bet.Bettor)
			if err != nil {
				return fmt.Errorf("failed to deliver asset to winner: %w", err)
			}
		} else {
			listing.State = kuji.ListingOpen

			err = kuji.PutListing(tx, listing)
			if err != nil {
				return err
			}
		}

		result.Settled = true
		result.Won = won
		result.Outcome = outcome
		result.Listing = *listing
		result.Bet = *bet

		event := kuji.NewEvent(kuji.EventBetSettled)
		event.Listing = listing
		event.Bet = bet
		event.Won = &result.Won
		event.Outcome = &result.Outcome
		events = append(events, event)

		return nil
	})
	if err != nil {
		slog.Error("fulfillment rejected", "request", f.RequestID, "err", err)

		return nil, err
	}

	if !result.Settled {
		slog.Debug("fulfillment ignored", "request", f.RequestID)

		return result, nil
	}

	slog.Info("bet settled", "request", f.RequestID, "listing", result.Listing.ID,
		"bettor", result.Bet.Bettor, "won", result.Won, "outcome", result.Outcome)

	s.publish(events)

	return result, nil
}

func (s *SettlementService) publish(events []kuji.Event) {
	if s.EventSink == nil {
		return
	}

	for _, event := range events {
		s.EventSink <- event
	}
}

func (s *SettlementService) PostFulfillment(c echo.Context) error {
	var fulfillment oracle.Fulfillment

	err := c.Bind(&fulfillment)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.Fulfill(fulfillment)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, SettleResponse{
		Settled: result.Settled,
		Won:     result.Won,
		Outcome: result.Outcome,
	})
}
