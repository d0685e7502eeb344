package kuji

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// OracleParams are the request parameters forwarded verbatim to the
// randomness coordinator. KeyHash doubles as the shared callback secret.
type OracleParams struct {
	KeyHash          string `json:"key_hash"`
	SubscriptionID   uint64 `json:"subscription_id"`
	CallbackGasLimit uint32 `json:"callback_gas_limit"`
	Confirmations    uint16 `json:"confirmations"`
	Words            uint32 `json:"words"`
}

// Config is the single admin-owned protocol configuration record.
type Config struct {
	Admin         string       `json:"admin"`
	RakePercent   uint64       `json:"rake_percent"`
	RakeRecipient string       `json:"rake_recipient"`
	Oracle        OracleParams `json:"oracle"`
}

func (c *Config) Validate() error {
	if c.Admin == "" {
		return errors.New("admin identity is required")
	}

	if c.RakePercent > ProbabilityMax {
		return fmt.Errorf("%w: rake above 100%%", ErrInvalidProbability)
	}

	if c.RakeRecipient == "" {
		return fmt.Errorf("%w: rake recipient is required", ErrInvalidAddress)
	}

	if c.Oracle.KeyHash == "" {
		return errors.New("oracle key hash is required")
	}

	if c.Oracle.Words == 0 {
		return errors.New("oracle must return at least one random word")
	}

	return nil
}

// SeedConfig writes the initial configuration on first start. An existing
// record wins so admin changes survive restarts.
func SeedConfig(db *bolt.DB, initial Config) error {
	err := initial.Validate()
	if err != nil {
		return fmt.Errorf("invalid initial configuration: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		current, err := GetConfig(tx)
		if err != nil {
			return err
		}

		if current != nil {
			return nil
		}

		return PutConfig(tx, &initial)
	})
	if err != nil {
		return fmt.Errorf("failed to seed configuration: %w", err)
	}

	return nil
}
