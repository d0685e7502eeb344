package bank

type DepositRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}
