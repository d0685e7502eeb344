package admin

import (
	"fmt"
	"net/http"

	log "github.com/inconshreveable/log15"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/kuji"
	bolt "go.etcd.io/bbolt"
)

var alog = log.New("module", "kuji.admin")

// AdminService is the privileged command surface: oracle and fee parameters,
// admin handover, and the recovery path for listings whose oracle request
// never came back.
type AdminService struct {
	DatabaseService *common.DatabaseService

	EventSink chan<- kuji.Event
}

func NewAdminService(i do.Injector) (*AdminService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSink := do.MustInvokeNamed[chan<- kuji.Event](i, "event-sink")

	result := &AdminService{
		DatabaseService: databaseService,
		EventSink:       eventSink,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		adminGroup := apiGroup.Group("/admin")

		adminGroup.PUT("/oracle", result.PutOracleParams)
		adminGroup.PUT("/rake/percent", result.PutRakePercent)
		adminGroup.PUT("/rake/recipient", result.PutRakeRecipient)
		adminGroup.PUT("/admin", result.PutAdmin)
		adminGroup.POST("/clear-pending", result.PostClearPending)
	})

	return result, nil
}

// update runs one privileged change with the admin check applied against the
// stored configuration.
func (s *AdminService) update(caller string, change func(tx *bolt.Tx, config *kuji.Config) error) error {
	return s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		config, err := kuji.MustConfig(tx)
		if err != nil {
			return err
		}

		if caller != config.Admin {
			return fmt.Errorf("%w: caller is not the administrator", kuji.ErrUnauthorized)
		}

		return change(tx, config)
	})
}

func (s *AdminService) publish(events []kuji.Event) {
	if s.EventSink == nil {
		return
	}

	for _, event := range events {
		s.EventSink <- event
	}
}

func (s *AdminService) SetOracleParams(caller string, params kuji.OracleParams) error {
	err := s.update(caller, func(tx *bolt.Tx, config *kuji.Config) error {
		if params.KeyHash == "" {
			return fmt.Errorf("%w: oracle key hash is required", kuji.ErrInvalidAddress)
		}

		if params.Words == 0 {
			return fmt.Errorf("%w: oracle must return at least one word", kuji.ErrInvalidAmount)
		}

		config.Oracle = params

		return kuji.PutConfig(tx, config)
	})
	if err != nil {
		alog.Error("oracle change rejected", "caller", caller, "err", err)

		return err
	}

	alog.Info("oracle params changed", "subscription", params.SubscriptionID,
		"confirmations", params.Confirmations, "words", params.Words)

	return nil
}

func (s *AdminService) SetRakePercent(caller string, rakePercent uint64) error {
	var events []kuji.Event

	err := s.update(caller, func(tx *bolt.Tx, config *kuji.Config) error {
		if rakePercent > kuji.ProbabilityMax {
			return fmt.Errorf("%w: rake above 100%%", kuji.ErrInvalidProbability)
		}

		config.RakePercent = rakePercent

		err := kuji.PutConfig(tx, config)
		if err != nil {
			return err
		}

		event := kuji.NewEvent(kuji.EventRakeChanged)
		event.RakePercent = &rakePercent
		event.RakeRecipient = config.RakeRecipient
		events = append(events, event)

		return nil
	})
	if err != nil {
		alog.Error("rake change rejected", "caller", caller, "err", err)

		return err
	}

	alog.Info("rake changed", "percent", rakePercent)

	s.publish(events)

	return nil
}

func (s *AdminService) SetRakeRecipient(caller string, recipient string) error {
	var events []kuji.Event

	err := s.update(caller, func(tx *bolt.Tx, config *kuji.Config) error {
		if recipient == "" || recipient == config.RakeRecipient {
			return fmt.Errorf("%w: rake recipient", kuji.ErrInvalidAddress)
		}

		config.RakeRecipient = recipient

		err := kuji.PutConfig(tx, config)
		if err != nil {
			return err
		}

		event := kuji.NewEvent(kuji.EventRakeRecipientChanged)
		event.RakePercent = &config.RakePercent
		event.RakeRecipient = recipient
		events = append(events, event)

		return nil
	})
	if err != nil {
		alog.Error("rake recipient change rejected", "caller", caller, "err", err)

		return err
	}

	alog.Info("rake recipient changed", "recipient", recipient)

	s.publish(events)

	return nil
}

func (s *AdminService) TransferAdmin(caller string, newAdmin string) error {
	err := s.update(caller, func(tx *bolt.Tx, config *kuji.Config) error {
		if newAdmin == "" || newAdmin == config.Admin {
			return fmt.Errorf("%w: new administrator", kuji.ErrInvalidAddress)
		}

		config.Admin = newAdmin

		return kuji.PutConfig(tx, config)
	})
	if err != nil {
		alog.Error("admin transfer rejected", "caller", caller, "err", err)

		return err
	}

	alog.Info("admin transferred", "admin", newAdmin)

	return nil
}

// ClearPending force-unlocks a listing whose oracle never answered. It drops
// the orphaned bet record and moves no value and no assets; it is the manual
// escape hatch, not a settlement.
func (s *AdminService) ClearPending(caller string, listingID uint64) error {
	var events []kuji.Event

	err := s.update(caller, func(tx *bolt.Tx, config *kuji.Config) error {
		listing, err := kuji.GetListing(tx, listingID)
		if err != nil {
			return err
		}

		if listing == nil {
			return fmt.Errorf("%w: listing %d", kuji.ErrInvalidReference, listingID)
		}

		if !listing.Pending() {
			return fmt.Errorf("%w: listing %d has no outstanding bet", kuji.ErrInvalidReference, listingID)
		}

		bet, err := kuji.PendingBetByListing(tx, listingID)
		if err != nil {
			return err
		}

		if bet != nil {
			err = kuji.DeletePendingBet(tx, bet.RequestID)
			if err != nil {
				return err
			}
		}

		listing.State = kuji.ListingOpen

		err = kuji.PutListing(tx, listing)
		if err != nil {
			return err
		}

		event := kuji.NewEvent(kuji.EventPendingCleared)
		event.Listing = listing
		event.Bet = bet
		events = append(events, event)

		return nil
	})
	if err != nil {
		alog.Error("clear pending rejected", "listing", listingID, "caller", caller, "err", err)

		return err
	}

	alog.Info("pending cleared", "listing", listingID)

	s.publish(events)

	return nil
}

func (s *AdminService) PutOracleParams(c echo.Context) error {
	var request SetOracleParamsRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.SetOracleParams(request.Caller, request.Oracle)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *AdminService) PutRakePercent(c echo.Context) error {
	var request SetRakePercentRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.SetRakePercent(request.Caller, request.RakePercent)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *AdminService) PutRakeRecipient(c echo.Context) error {
	var request SetRakeRecipientRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.SetRakeRecipient(request.Caller, request.RakeRecipient)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *AdminService) PutAdmin(c echo.Context) error {
	var request TransferAdminRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.TransferAdmin(request.Caller, request.NewAdmin)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *AdminService) PostClearPending(c echo.Context) error {
	var request ClearPendingRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.ClearPending(request.Caller, request.ListingID)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}
