package ledger

import (
	"time"
)

// Player is the opaque caller identity. The core relies on equality only and
// never inspects its contents.
type Player string

// Resource identifies a resource kind, e.g. "IRON" or "ENERGY".
type Resource string

// TransactionKind discriminates ledger movements in the per-player log.
type TransactionKind int32

const (
	KindTransfer TransactionKind = iota
	KindBuy
	KindSell
)

func (k TransactionKind) String() string {
	switch k {
	case KindTransfer:
		return "Transfer"
	case KindBuy:
		return "Buy"
	case KindSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Transaction is one completed ledger movement. Entries are append-only and
// immutable once written; a player's history is ordered oldest first.
type Transaction struct {
	Timestamp    time.Time       `json:"timestamp"`
	Kind         TransactionKind `json:"kind"`
	Resource     Resource        `json:"resource"`
	Amount       int64           `json:"amount"`
	Price        int64           `json:"price"` // 0 for plain transfers
	Counterparty Player          `json:"counterparty"`
}

// Outcome classifies expected results of ledger administrative operations.
type Outcome int32

const (
	OutcomeOK Outcome = iota
	OutcomeAlreadyExists
	OutcomeNotFound
	OutcomeInvalidAmount
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeAlreadyExists:
		return "AlreadyExists"
	case OutcomeNotFound:
		return "NotFound"
	case OutcomeInvalidAmount:
		return "InvalidAmount"
	default:
		return "Unknown"
	}
}
