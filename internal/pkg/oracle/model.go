package oracle

// Request mirrors the parameters a randomness coordinator expects: which key
// to prove against, who pays, and how the callback is bounded.
type Request struct {
	KeyHash          string `json:"key_hash"`
	SubscriptionID   uint64 `json:"subscription_id"`
	CallbackGasLimit uint32 `json:"callback_gas_limit"`
	Confirmations    uint16 `json:"confirmations"`
	Words            uint32 `json:"words"`
}

// Fulfillment is the coordinator's callback payload. The signature is a hex
// HMAC-SHA256 over the request ID and the random words, keyed with the
// shared oracle key, and is the protocol's proof the caller is the oracle.
type Fulfillment struct {
	RequestID   string   `json:"request_id"`
	RandomWords []uint64 `json:"random_words"`
	Signature   string   `json:"signature"`
}
