package kuji

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vreid/kuji/internal/pkg/common"
	bolt "go.etcd.io/bbolt"
)

// The store operates on a caller-supplied bbolt transaction so that every
// protocol entry point is one atomic Update: either the whole state
// transition commits or none of it does.

var errMissingBucket = errors.New("bucket doesn't exist")

const configKey = "config"

func listings(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(common.ListingsBucket))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", errMissingBucket, common.ListingsBucket)
	}

	return b, nil
}

func pendingBets(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(common.PendingBetsBucket))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", errMissingBucket, common.PendingBetsBucket)
	}

	return b, nil
}

func NextListingID(tx *bolt.Tx) (uint64, error) {
	b, err := listings(tx)
	if err != nil {
		return 0, err
	}

	id, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("failed to advance listing sequence: %w", err)
	}

	return id, nil
}

func GetListing(tx *bolt.Tx, id uint64) (*Listing, error) {
	b, err := listings(tx)
	if err != nil {
		return nil, err
	}

	raw := b.Get(common.Uint64ToBytes(id))
	if raw == nil {
		return nil, nil
	}

	var listing Listing

	err = json.Unmarshal(raw, &listing)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing %d: %w", id, err)
	}

	return &listing, nil
}

func PutListing(tx *bolt.Tx, listing *Listing) error {
	b, err := listings(tx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing %d: %w", listing.ID, err)
	}

	err = b.Put(common.Uint64ToBytes(listing.ID), raw)
	if err != nil {
		return fmt.Errorf("failed to put listing %d: %w", listing.ID, err)
	}

	return nil
}

func DeleteListing(tx *bolt.Tx, id uint64) error {
	b, err := listings(tx)
	if err != nil {
		return err
	}

	err = b.Delete(common.Uint64ToBytes(id))
	if err != nil {
		return fmt.Errorf("failed to delete listing %d: %w", id, err)
	}

	return nil
}

func ListListings(tx *bolt.Tx) ([]Listing, error) {
	b, err := listings(tx)
	if err != nil {
		return nil, err
	}

	result := make([]Listing, 0)

	err = b.ForEach(func(_ []byte, raw []byte) error {
		var listing Listing

		err := json.Unmarshal(raw, &listing)
		if err != nil {
			return fmt.Errorf("failed to unmarshal listing: %w", err)
		}

		result = append(result, listing)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func GetPendingBet(tx *bolt.Tx, requestID string) (*PendingBet, error) {
	b, err := pendingBets(tx)
	if err != nil {
		return nil, err
	}

	raw := b.Get([]byte(requestID))
	if raw == nil {
		return nil, nil
	}

	var bet PendingBet

	err = json.Unmarshal(raw, &bet)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending bet %s: %w", requestID, err)
	}

	return &bet, nil
}

func PutPendingBet(tx *bolt.Tx, bet *PendingBet) error {
	b, err := pendingBets(tx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(bet)
	if err != nil {
		return fmt.Errorf("failed to marshal pending bet %s: %w", bet.RequestID, err)
	}

	err = b.Put([]byte(bet.RequestID), raw)
	if err != nil {
		return fmt.Errorf("failed to put pending bet %s: %w", bet.RequestID, err)
	}

	return nil
}

func DeletePendingBet(tx *bolt.Tx, requestID string) error {
	b, err := pendingBets(tx)
	if err != nil {
		return err
	}

	err = b.Delete([]byte(requestID))
	if err != nil {
		return fmt.Errorf("failed to delete pending bet %s: %w", requestID, err)
	}

	return nil
}

// PendingBetByListing finds the single outstanding bet for a listing, if any.
func PendingBetByListing(tx *bolt.Tx, listingID uint64) (*PendingBet, error) {
	b, err := pendingBets(tx)
	if err != nil {
		return nil, err
	}

	var found *PendingBet

	err = b.ForEach(func(_ []byte, raw []byte) error {
		var bet PendingBet

		err := json.Unmarshal(raw, &bet)
		if err != nil {
			return fmt.Errorf("failed to unmarshal pending bet: %w", err)
		}

		if bet.ListingID == listingID {
			found = &bet
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

func GetConfig(tx *bolt.Tx) (*Config, error) {
	b := tx.Bucket([]byte(common.ConfigBucket))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", errMissingBucket, common.ConfigBucket)
	}

	raw := b.Get([]byte(configKey))
	if raw == nil {
		return nil, nil
	}

	var config Config

	err := json.Unmarshal(raw, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func PutConfig(tx *bolt.Tx, config *Config) error {
	b := tx.Bucket([]byte(common.ConfigBucket))
	if b == nil {
		return fmt.Errorf("%w: %s", errMissingBucket, common.ConfigBucket)
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = b.Put([]byte(configKey), raw)
	if err != nil {
		return fmt.Errorf("failed to put config: %w", err)
	}

	return nil
}

// MustConfig is GetConfig for entry points that cannot run unconfigured.
func MustConfig(tx *bolt.Tx) (*Config, error) {
	config, err := GetConfig(tx)
	if err != nil {
		return nil, err
	}

	if config == nil {
		return nil, errors.New("protocol configuration has not been seeded")
	}

	return config, nil
}
