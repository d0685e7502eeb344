package registry

import "github.com/vreid/kuji/internal/pkg/custody"

type ListRequest struct {
	Caller string      `json:"caller"`
	Asset  custody.Ref `json:"asset"`

	WagerAmount    uint64 `json:"wager_amount"`
	WinProbability uint64 `json:"win_probability"`
}

type CancelRequest struct {
	Caller string `json:"caller"`
}

type SetWagerAmountRequest struct {
	Caller      string `json:"caller"`
	WagerAmount uint64 `json:"wager_amount"`
}

type SetWinProbabilityRequest struct {
	Caller         string `json:"caller"`
	WinProbability uint64 `json:"win_probability"`
}
