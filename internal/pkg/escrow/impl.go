package escrow

import (
	"fmt"
	"net/http"

	log "github.com/inconshreveable/log15"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/bank"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/kuji"
	"github.com/vreid/kuji/internal/pkg/oracle"
	bolt "go.etcd.io/bbolt"
)

var elog = log.New("module", "kuji.escrow")

// EscrowService executes wagers: it collects the payment, splits the rake,
// locks the listing and asks the oracle for the deciding random value.
type EscrowService struct {
	DatabaseService *common.DatabaseService
	Oracle          oracle.Oracle

	EventSink chan<- kuji.Event
}

func NewEscrowService(i do.Injector) (*EscrowService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	randomness := do.MustInvoke[oracle.Oracle](i)
	eventSink := do.MustInvokeNamed[chan<- kuji.Event](i, "event-sink")

	result := &EscrowService{
		DatabaseService: databaseService,
		Oracle:          randomness,
		EventSink:       eventSink,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		escrowGroup := apiGroup.Group("/escrow")

		escrowGroup.POST("/bets", result.PostBet)
	})

	return result, nil
}

// PlaceBet is all-or-nothing: payment split, pending lock, randomness request
// and the bet record commit together or not at all.
func (s *EscrowService) PlaceBet(caller string, listingID uint64, paidAmount uint64) (string, error) {
	var requestID string

	var events []kuji.Event

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		config, err := kuji.MustConfig(tx)
		if err != nil {
			return err
		}

		listing, err := kuji.GetListing(tx, listingID)
		if err != nil {
			return err
		}

		if listing == nil {
			return fmt.Errorf("%w: listing %d", kuji.ErrInvalidReference, listingID)
		}

		// At most one outstanding bet per listing; this flag is the
		// protocol's sole concurrency guard.
		if listing.Pending() {
			return fmt.Errorf("%w: listing %d", kuji.ErrPendingOperation, listingID)
		}

		if paidAmount < listing.WagerAmount {
			return fmt.Errorf("%w: paid %d, wager is %d",
				kuji.ErrInsufficientFunds, paidAmount, listing.WagerAmount)
		}

		// Only the wager is debited; any excess never leaves the bettor,
		// so there is no refund to issue.
		rake := kuji.RakeAmount(listing.WagerAmount, config.RakePercent)

		err = bank.Transfer(tx, caller, config.RakeRecipient, rake)
		if err != nil {
			return err
		}

		err = bank.Transfer(tx, caller, listing.Custodian, listing.WagerAmount-rake)
		if err != nil {
			return err
		}

		listing.State = kuji.ListingAwaitingRandomness

		err = kuji.PutListing(tx, listing)
		if err != nil {
			return err
		}

		requestID, err = s.Oracle.RequestRandomness(oracle.Request{
			KeyHash:          config.Oracle.KeyHash,
			SubscriptionID:   config.Oracle.SubscriptionID,
			CallbackGasLimit: config.Oracle.CallbackGasLimit,
			Confirmations:    config.Oracle.Confirmations,
			Words:            config.Oracle.Words,
		})
		if err != nil {
			return fmt.Errorf("failed to request randomness: %w", err)
		}

		bet := &kuji.PendingBet{
			RequestID: requestID,
			ListingID: listingID,
			Bettor:    caller,
		}

		err = kuji.PutPendingBet(tx, bet)
		if err != nil {
			return err
		}

		event := kuji.NewEvent(kuji.EventBetPlaced)
		event.Listing = listing
		event.Bet = bet
		events = append(events, event)

		return nil
	})
	if err != nil {
		elog.Error("bet rejected", "listing", listingID, "bettor", caller, "err", err)

		return "", err
	}

	elog.Info("bet placed", "listing", listingID, "bettor", caller, "request", requestID)

	s.publish(events)

	return requestID, nil
}

func (s *EscrowService) publish(events []kuji.Event) {
	if s.EventSink == nil {
		return
	}

	for _, event := range events {
		s.EventSink <- event
	}
}

func (s *EscrowService) PostBet(c echo.Context) error {
	var request PlaceBetRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	requestID, err := s.PlaceBet(request.Caller, request.ListingID, request.PaidAmount)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusAccepted, PlaceBetResponse{
		RequestID: requestID,
		ListingID: request.ListingID,
	})
}
