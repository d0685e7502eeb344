package escrow

type PlaceBetRequest struct {
	Caller    string `json:"caller"`
	ListingID uint64 `json:"listing_id"`

	// PaidAmount is what the bettor offers; anything above the listing's
	// wager never leaves their balance.
	PaidAmount uint64 `json:"paid_amount"`
}

type PlaceBetResponse struct {
	RequestID string `json:"request_id"`
	ListingID uint64 `json:"listing_id"`
}
