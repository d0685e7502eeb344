package settlement

// SettleResponse reports what a fulfillment did. Duplicate or unknown
// request IDs settle nothing and are reported as such.
type SettleResponse struct {
	Settled bool   `json:"settled"`
	Won     bool   `json:"won,omitempty"`
	Outcome uint64 `json:"outcome,omitempty"`
}
