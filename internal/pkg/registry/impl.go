package registry

import (
	"fmt"
	"net/http"
	"strconv"

	log "github.com/inconshreveable/log15"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/vreid/kuji/internal/pkg/common"
	"github.com/vreid/kuji/internal/pkg/custody"
	"github.com/vreid/kuji/internal/pkg/kuji"
	bolt "go.etcd.io/bbolt"
)

var rlog = log.New("module", "kuji.registry")

// RegistryService owns the listing lifecycle: create, cancel and parameter
// changes. A listing with an outstanding bet refuses all of them.
type RegistryService struct {
	DatabaseService *common.DatabaseService
	Custody         custody.Custody

	// Vault is the protocol's own custody identity; listed assets are held
	// there between listing and settlement.
	Vault string

	EventSink chan<- kuji.Event
}

func NewRegistryService(i do.Injector) (*RegistryService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	assetCustody := do.MustInvoke[custody.Custody](i)
	vault := do.MustInvokeNamed[string](i, "vault")
	eventSink := do.MustInvokeNamed[chan<- kuji.Event](i, "event-sink")

	result := &RegistryService{
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

		registryGroup := apiGroup.Group("/registry")

		registryGroup.POST("/listings", result.PostListing)
		registryGroup.GET("/listings", result.GetListings)
		registryGroup.GET("/listings/:id", result.GetListing)
		registryGroup.DELETE("/listings/:id", result.DeleteListing)
		registryGroup.PATCH("/listings/:id/wager", result.PatchWagerAmount)
		registryGroup.PATCH("/listings/:id/probability", result.PatchWinProbability)
	})

	return result, nil
}

func (s *RegistryService) publish(events []kuji.Event) {
	if s.EventSink == nil {
		return
	}

	for _, event := range events {
		s.EventSink <- event
	}
}

// List escrows the caller's asset and opens a listing for it.
func (s *RegistryService) List(caller string, asset custody.Ref, wagerAmount uint64, winProbability uint64) (*kuji.Listing, error) {
	err := kuji.ValidateWagerAmount(wagerAmount)
	if err != nil {
		return nil, err
	}

	err = kuji.ValidateWinProbability(winProbability)
	if err != nil {
		return nil, err
	}

	owner, err := s.Custody.OwnerOf(asset)
	if err != nil {
		return nil, fmt.Errorf("failed to verify asset owner: %w", err)
	}

	if owner != caller {
		return nil, fmt.Errorf("%w: %s does not hold %s", kuji.ErrUnauthorized, caller, asset)
	}

	var listing *kuji.Listing

	var events []kuji.Event

	err = s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		id, err := kuji.NextListingID(tx)
		if err != nil {
			return err
		}

		listing = &kuji.Listing{
			ID:             id,
			Custodian:      caller,
			Asset:          asset,
			WagerAmount:    wagerAmount,
			WinProbability: winProbability,
			State:          kuji.ListingOpen,
		}

		err = kuji.PutListing(tx, listing)
		if err != nil {
			return err
		}

		event := kuji.NewEvent(kuji.EventListingCreated)
		event.Listing = listing
		events = append(events, event)

		// The record exists before the asset moves; a failed transfer
		// rolls the whole listing back.
		err = s.Custody.Transfer(asset, caller, s.Vault)
		if err != nil {
			return fmt.Errorf("failed to escrow asset: %w", err)
		}

		return nil
	})
	if err != nil {
		rlog.Error("list rejected", "caller", caller, "asset", asset, "err", err)

		return nil, err
	}

	rlog.Info("listing created", "id", listing.ID, "custodian", caller, "asset", asset,
		"wager", wagerAmount, "probability", winProbability)

	s.publish(events)

	return listing, nil
}

// Cancel removes a non-pending listing and returns the asset to its custodian.
func (s *RegistryService) Cancel(caller string, id uint64) error {
	var events []kuji.Event

	err := s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, id)
		if err != nil {
			return err
		}

		if listing == nil {
			return fmt.Errorf("%w: listing %d", kuji.ErrInvalidReference, id)
		}

		if listing.Custodian != caller {
			return fmt.Errorf("%w: only the custodian may cancel", kuji.ErrUnauthorized)
		}

		if listing.Pending() {
			return fmt.Errorf("%w: listing %d", kuji.ErrPendingOperation, id)
		}

		err = kuji.DeleteListing(tx, id)
		if err != nil {
			return err
		}

		event := kuji.NewEvent(kuji.EventListingCancelled)
		event.Listing = listing
		events = append(events, event)

		err = s.Custody.Transfer(listing.Asset, s.Vault, listing.Custodian)
		if err != nil {
			return fmt.Errorf("failed to return asset: %w", err)
		}

		return nil
	})
	if err != nil {
		rlog.Error("cancel rejected", "id", id, "caller", caller, "err", err)

		return err
	}

	rlog.Info("listing cancelled", "id", id, "custodian", caller)

	s.publish(events)

	return nil
}

// mutate applies one in-place field change under the custodian/pending guards.
func (s *RegistryService) mutate(caller string, id uint64, change func(*kuji.Listing) error) error {
	return s.DatabaseService.DB.Update(func(tx *bolt.Tx) error {
		listing, err := kuji.GetListing(tx, id)
		if err != nil {
			return err
		}

		if listing == nil {
			return fmt.Errorf("%w: listing %d", kuji.ErrInvalidReference, id)
		}

		if listing.Custodian != caller {
			return fmt.Errorf("%w: only the custodian may change a listing", kuji.ErrUnauthorized)
		}

		if listing.Pending() {
			return fmt.Errorf("%w: listing %d", kuji.ErrPendingOperation, id)
		}

		err = change(listing)
		if err != nil {
			return err
		}

		return kuji.PutListing(tx, listing)
	})
}

func (s *RegistryService) SetWagerAmount(caller string, id uint64, amount uint64) error {
	err := s.mutate(caller, id, func(listing *kuji.Listing) error {
		err := kuji.ValidateWagerAmount(amount)
		if err != nil {
			return err
		}

		listing.WagerAmount = amount

		return nil
	})
	if err != nil {
		rlog.Error("wager change rejected", "id", id, "caller", caller, "err", err)

		return err
	}

	rlog.Info("wager changed", "id", id, "amount", amount)

	return nil
}

func (s *RegistryService) SetWinProbability(caller string, id uint64, probability uint64) error {
	err := s.mutate(caller, id, func(listing *kuji.Listing) error {
		err := kuji.ValidateWinProbability(probability)
		if err != nil {
			return err
		}

		listing.WinProbability = probability

		return nil
	})
	if err != nil {
		rlog.Error("probability change rejected", "id", id, "caller", caller, "err", err)

		return err
	}

	rlog.Info("probability changed", "id", id, "probability", probability)

	return nil
}

func (s *RegistryService) PostListing(c echo.Context) error {
	var request ListRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	listing, err := s.List(request.Caller, request.Asset, request.WagerAmount, request.WinProbability)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, listing)
}

func (s *RegistryService) GetListings(c echo.Context) error {
	var result []kuji.Listing

	err := s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		var err error

		result, err = kuji.ListListings(tx)

		return err
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read listings")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, result, "  ")
}

func (s *RegistryService) GetListing(c echo.Context) error {
	id, err := listingID(c)
	if err != nil {
		return err
	}

	var listing *kuji.Listing

	err = s.DatabaseService.DB.View(func(tx *bolt.Tx) error {
		var err error

		listing, err = kuji.GetListing(tx, id)

		return err
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read listing")
	}

	if listing == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown listing")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, listing, "  ")
}

func (s *RegistryService) DeleteListing(c echo.Context) error {
	id, err := listingID(c)
	if err != nil {
		return err
	}

	var request CancelRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.Cancel(request.Caller, id)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *RegistryService) PatchWagerAmount(c echo.Context) error {
	id, err := listingID(c)
	if err != nil {
		return err
	}

	var request SetWagerAmountRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.SetWagerAmount(request.Caller, id, request.WagerAmount)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func (s *RegistryService) PatchWinProbability(c echo.Context) error {
	id, err := listingID(c)
	if err != nil {
		return err
	}

	var request SetWinProbabilityRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err = s.SetWinProbability(request.Caller, id, request.WinProbability)
	if err != nil {
		return echo.NewHTTPError(kuji.HTTPStatus(err), err.Error())
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}

func listingID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid listing id")
	}

	return id, nil
}
