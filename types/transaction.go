package types

import (
	"time"

	"portfoliosim/internal/fixed"
)

type TransactionKind string

const (
	TransactionDeposit  TransactionKind = "DEPOSIT"
	TransactionWithdraw TransactionKind = "WITHDRAW"
	TransactionBuy      TransactionKind = "BUY"
	TransactionSell     TransactionKind = "SELL"
	TransactionInterest TransactionKind = "INTEREST"
	TransactionDividend TransactionKind = "DIVIDEND"
)

// FlowDirection tells whether a cash movement enters or leaves the account
// from outside (External) or is generated by the holdings themselves (Internal).
// Only external flows are removed when computing time-weighted returns.
type FlowDirection string

const (
	FlowExternal FlowDirection = "EXTERNAL"
	FlowInternal FlowDirection = "INTERNAL"
)

type Transaction struct {
	Time   time.Time
	Kind   TransactionKind
	Flow   FlowDirection
	Symbol string
	Shares fixed.Point
	Price  fixed.Point
	Amount fixed.Point
	Memo   string
}

type AccountType string

const (
	AccountCash   AccountType = "CASH"
	AccountMargin AccountType = "MARGIN"
)
