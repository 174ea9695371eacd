package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventTransferCompleted = "TransferCompleted"

// TransferCompleted is published after a transfer's unit has committed. It
// deliberately carries neither the transaction id nor the currency.
type TransferCompleted struct {
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	PublishedAt time.Time       `json:"published_at"`
}
