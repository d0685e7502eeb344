package kuji

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/vreid/kuji/internal/pkg/custody"
)

// Probabilities and the rake share one fixed-point scale:
// 1 unit = 0.000001 %, so 100 % = 100_000_000 units.
const ProbabilityMax uint64 = 100_000_000

type ListingState string

const (
	ListingOpen               ListingState = "open"
	ListingAwaitingRandomness ListingState = "awaiting-randomness"
)

// Listing is an open offer: the custodian escrows an asset and anyone may pay
// WagerAmount for a WinProbability chance to take it.
type Listing struct {
	ID        uint64      `json:"id"`
	Custodian string      `json:"custodian"`
	Asset     custody.Ref `json:"asset"`

	WagerAmount    uint64 `json:"wager_amount"`
	WinProbability uint64 `json:"win_probability"`

	// State is AwaitingRandomness while exactly one randomness request is
	// outstanding. Such a listing cannot be cancelled, re-wagered or mutated.
	State ListingState `json:"state"`
}

func (l *Listing) Pending() bool {
	return l.State == ListingAwaitingRandomness
}

// PendingBet is the captured continuation of a bet between the randomness
// request and its fulfillment, keyed by the oracle request ID.
type PendingBet struct {
	RequestID string `json:"request_id"`
	ListingID uint64 `json:"listing_id"`
	Bettor    string `json:"bettor"`
}

type EventType string

const (
	EventListingCreated       EventType = "listing-created"
	EventListingCancelled     EventType = "listing-cancelled"
	EventBetPlaced            EventType = "bet-placed"
	EventBetSettled           EventType = "bet-settled"
	EventRakeChanged          EventType = "rake-changed"
	EventRakeRecipientChanged EventType = "rake-recipient-changed"
	EventPendingCleared       EventType = "pending-cleared"
)

// Event is the audit record handed to indexers. It carries the full relevant
// state so consumers never have to re-query the protocol.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Listing *Listing    `json:"listing,omitempty"`
	Bet     *PendingBet `json:"bet,omitempty"`

	Won     *bool   `json:"won,omitempty"`
	Outcome *uint64 `json:"outcome,omitempty"`

	RakePercent   *uint64 `json:"rake_percent,omitempty"`
	RakeRecipient string  `json:"rake_recipient,omitempty"`
}

func NewEvent(eventType EventType) Event {
	id, err := uuid.NewV7()
	if err != nil {
		// v7 generation only fails when the random source does.
		return Event{Type: eventType, Timestamp: time.Now().UTC()}
	}

	return Event{
		ID:        id.String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func ValidateWagerAmount(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	return nil
}

func ValidateWinProbability(probability uint64) error {
	if probability == 0 || probability > ProbabilityMax {
		return ErrInvalidProbability
	}

	return nil
}

// RakeAmount is the protocol's cut of one wager, rounded down; the remainder
// always goes to the custodian.
func RakeAmount(wager uint64, rakePercent uint64) uint64 {
	rake := new(big.Int).Mul(
		new(big.Int).SetUint64(wager),
		new(big.Int).SetUint64(rakePercent),
	)
	rake.Div(rake, new(big.Int).SetUint64(ProbabilityMax))

	return rake.Uint64()
}

// Normalize maps a raw random word onto [0, ProbabilityMax] inclusive.
//
// The modulo keeps the original protocol's outcome distribution, including
// its slight bias towards the low end of the range for sources whose span is
// not a multiple of ProbabilityMax+1.
func Normalize(word uint64) uint64 {
	return word % (ProbabilityMax + 1)
}

// Wins reports the settlement outcome. An outcome equal to the win
// probability still wins, so probability 1 unit is a 2-in-(max+1) chance.
func Wins(outcome uint64, winProbability uint64) bool {
	return outcome <= winProbability
}
