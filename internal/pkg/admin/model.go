package admin

import "github.com/vreid/kuji/internal/pkg/kuji"

type SetOracleParamsRequest struct {
	Caller string            `json:"caller"`
	Oracle kuji.OracleParams `json:"oracle"`
}

type SetRakePercentRequest struct {
	Caller      string `json:"caller"`
	RakePercent uint64 `json:"rake_percent"`
}

type SetRakeRecipientRequest struct {
	Caller        string `json:"caller"`
	RakeRecipient string `json:"rake_recipient"`
}

type ClearPendingRequest struct {
	Caller    string `json:"caller"`
	ListingID uint64 `json:"listing_id"`
}

type TransferAdminRequest struct {
	Caller   string `json:"caller"`
	NewAdmin string `json:"new_admin"`
}
