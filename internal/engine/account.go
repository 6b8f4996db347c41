package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"portfoliosim/internal/fixed"
	"portfoliosim/types"
)

var InsufficientBalanceErr = errors.New("insufficient balance")
var ShortSellNotAllowedErr = errors.New("short sell not allowed")
var NonPositiveValueErr = errors.New("account value is not positive")

type AccountFlags struct {
	AllowShortSelling bool
	Epsilon           float64
}

type Position struct {
	Symbol  string
	Shares  fixed.Point
	AvgCost fixed.Point
}

// MonthEndMark is the account value recorded on the last business day of a
// month.
type MonthEndMark struct {
	Time  time.Time
	Value fixed.Point
}

// Account is one portfolio held at a Broker. Every amount is a fixed.Point.
type Account struct {
	name        string
	accountType types.AccountType
	flags       AccountFlags
	broker      *Broker

	cash         fixed.Point
	positions    map[string]*Position
	ledger       []types.Transaction
	monthEnds    []MonthEndMark
	deposits     fixed.Point
	pendingFlows fixed.Point
}

func newAccount(b *Broker, name string, initial fixed.Point, accountType types.AccountType, flags AccountFlags) *Account {
	if flags.Epsilon <= 0 {
		flags.Epsilon = DefaultEpsilon
	}
	a := &Account{
		name:        name,
		accountType: accountType,
		flags:       flags,
		broker:      b,
		cash:        initial,
		positions:   make(map[string]*Position),
		deposits:    initial,
	}
	a.ledger = append(a.ledger, types.Transaction{
		Time:   b.today.Time,
		Kind:   types.TransactionDeposit,
		Flow:   types.FlowExternal,
		Amount: initial,
		Memo:   "opening balance",
	})
	return a
}

func (a *Account) Name() string               { return a.name }
func (a *Account) Type() types.AccountType    { return a.accountType }
func (a *Account) Cash() fixed.Point          { return a.cash }
func (a *Account) TotalDeposits() fixed.Point { return a.deposits }
func (a *Account) MonthEnds() []MonthEndMark  { return append([]MonthEndMark(nil), a.monthEnds...) }
func (a *Account) Transactions() []types.Transaction {
	return append([]types.Transaction(nil), a.ledger...)
}

// Position returns the number of shares held in symbol.
func (a *Account) Position(symbol string) fixed.Point {
	if p, ok := a.positions[symbol]; ok {
		return p.Shares
	}
	return fixed.Zero
}

// Symbols returns the held symbols in sorted order.
func (a *Account) Symbols() []string {
	out := make([]string, 0, len(a.positions))
	for sym, p := range a.positions {
		if !p.Shares.IsZero() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Value is cash plus every position marked at the valuation price.
func (a *Account) Value() (fixed.Point, error) {
	total := a.cash
	for _, sym := range a.Symbols() {
		price, err := a.broker.ValuationPrice(sym)
		if err != nil {
			return 0, err
		}
		v, err := fixed.Mul(a.positions[sym].Shares, price)
		if err != nil {
			return 0, fmt.Errorf("value of %s: %w", sym, err)
		}
		if total, err = fixed.Add(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Deposit adds amount to cash; a negative amount withdraws. External flows are
// new money and are excluded from returns.
func (a *Account) Deposit(amount fixed.Point, flow types.FlowDirection, memo string) error {
	kind := types.TransactionDeposit
	if amount.Sign() < 0 {
		kind = types.TransactionWithdraw
	}
	return a.credit(kind, flow, "", amount, memo)
}

func (a *Account) credit(kind types.TransactionKind, flow types.FlowDirection, symbol string, amount fixed.Point, memo string) error {
	newCash, err := fixed.Add(a.cash, amount)
	if err != nil {
		return err
	}
	if newCash.Sign() < 0 && a.accountType != types.AccountMargin {
		return fmt.Errorf("%s %s on %s: %w", kind, amount, a.name, InsufficientBalanceErr)
	}
	if flow == types.FlowExternal {
		if a.deposits, err = fixed.Add(a.deposits, amount); err != nil {
			return err
		}
		if a.pendingFlows, err = fixed.Add(a.pendingFlows, amount); err != nil {
			return err
		}
	}
	a.cash = newCash
	a.ledger = append(a.ledger, types.Transaction{
		Time:   a.broker.today.Time,
		Kind:   kind,
		Flow:   flow,
		Symbol: symbol,
		Amount: amount,
		Memo:   memo,
	})
	return nil
}

// drainExternalFlows returns the external flows since the last call.
func (a *Account) drainExternalFlows() fixed.Point {
	f := a.pendingFlows
	a.pendingFlows = fixed.Zero
	return f
}

type trade struct {
	symbol string
	shares fixed.Point // sells
	spend  fixed.Point // buys
	memo   string
}

// UpdatePositions trades toward the target weights of dist. Sells execute
// before buys so that their proceeds fund the purchases.
func (a *Account) UpdatePositions(dist types.Distribution) error {
	if err := a.broker.requireDay("update positions"); err != nil {
		return err
	}
	total, err := a.Value()
	if err != nil {
		return err
	}
	if total.Sign() <= 0 {
		return fmt.Errorf("rebalance %s at %s: %w", a.name, total, NonPositiveValueErr)
	}

	symbols := a.Symbols()
	for _, n := range dist.Names {
		if _, held := a.positions[n]; !held || a.positions[n].Shares.IsZero() {
			symbols = append(symbols, n)
		}
	}
	sort.Strings(symbols)

	var sells, buys []trade
	for _, sym := range symbols {
		w := dist.Weight(sym)
		held := a.Position(sym)
		if math.Abs(w) < a.flags.Epsilon {
			if held.IsZero() {
				continue
			}
			if held.Sign() > 0 {
				sells = append(sells, trade{symbol: sym, shares: held, memo: "exit position"})
				continue
			}
			w = 0
		}
		if w < 0 && !a.flags.AllowShortSelling {
			return fmt.Errorf("target weight %v for %s: %w", w, sym, ShortSellNotAllowedErr)
		}

		price, err := a.broker.ValuationPrice(sym)
		if err != nil {
			return err
		}
		wf, err := fixed.FromFloat(w)
		if err != nil {
			return err
		}
		target, err := fixed.Mul(total, wf)
		if err != nil {
			return err
		}
		current, err := fixed.Mul(held, price)
		if err != nil {
			return err
		}
		delta, err := fixed.Sub(target, current)
		if err != nil {
			return err
		}
		switch delta.Sign() {
		case -1:
			shares, err := fixed.DivTrunc(delta.Abs(), price)
			if err != nil {
				return err
			}
			if !a.flags.AllowShortSelling && shares.Gt(held) {
				shares = held
			}
			if !shares.IsZero() {
				sells = append(sells, trade{symbol: sym, shares: shares, memo: "rebalance"})
			}
		case 1:
			buys = append(buys, trade{symbol: sym, spend: delta, memo: "rebalance"})
		}
	}

	for _, t := range sells {
		if err := a.sell(t.symbol, t.shares, t.memo); err != nil {
			return err
		}
	}
	if err := a.scaleBuys(buys); err != nil {
		return err
	}
	for _, t := range buys {
		if err := a.buy(t.symbol, t.spend, t.memo); err != nil {
			return err
		}
	}
	return nil
}

// scaleBuys shrinks the buys pro rata when a cash account cannot fund them.
func (a *Account) scaleBuys(buys []trade) error {
	if a.accountType == types.AccountMargin || len(buys) == 0 {
		return nil
	}
	need := fixed.Zero
	for _, t := range buys {
		var err error
		if need, err = fixed.Add(need, t.spend); err != nil {
			return err
		}
	}
	if need.Lte(a.cash) {
		return nil
	}
	if a.cash.Sign() <= 0 {
		for i := range buys {
			buys[i].spend = fixed.Zero
		}
		return nil
	}
	ratio, err := fixed.DivTrunc(a.cash, need)
	if err != nil {
		return err
	}
	for i := range buys {
		s, err := fixed.Mul(buys[i].spend, ratio)
		if err != nil {
			return err
		}
		buys[i].spend = s
	}
	return nil
}

func (a *Account) buy(symbol string, spend fixed.Point, memo string) error {
	if spend.Sign() <= 0 {
		return nil
	}
	quote, err := a.broker.QuotePrice(symbol)
	if err != nil {
		return err
	}
	exec, err := a.broker.slippage.Buy(quote)
	if err != nil {
		return err
	}
	shares, err := fixed.DivTrunc(spend, exec)
	if err != nil {
		return err
	}
	cost, err := fixed.Mul(shares, exec)
	if err != nil {
		return err
	}
	// rounding in Mul can overshoot the cash by a unit
	for a.accountType != types.AccountMargin && cost.Gt(a.cash) && shares.Sign() > 0 {
		shares--
		if cost, err = fixed.Mul(shares, exec); err != nil {
			return err
		}
	}
	if shares.IsZero() {
		return nil
	}
	return a.fill(types.TransactionBuy, symbol, shares, exec, cost.Neg(), memo)
}

func (a *Account) sell(symbol string, shares fixed.Point, memo string) error {
	quote, err := a.broker.QuotePrice(symbol)
	if err != nil {
		return err
	}
	exec, err := a.broker.slippage.Sell(quote)
	if err != nil {
		return err
	}
	proceeds, err := fixed.Mul(shares, exec)
	if err != nil {
		return err
	}
	return a.fill(types.TransactionSell, symbol, shares.Neg(), exec, proceeds, memo)
}

// fill applies a signed share change and the matching cash change.
func (a *Account) fill(kind types.TransactionKind, symbol string, shares, price, cashDelta fixed.Point, memo string) error {
	newCash, err := fixed.Add(a.cash, cashDelta)
	if err != nil {
		return err
	}
	if newCash.Sign() < 0 && a.accountType != types.AccountMargin {
		return fmt.Errorf("%s %s %s: %w", kind, shares.Abs(), symbol, InsufficientBalanceErr)
	}

	pos := a.positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol}
		a.positions[symbol] = pos
	}
	oldQty := pos.Shares
	newQty, err := fixed.Add(oldQty, shares)
	if err != nil {
		return err
	}
	if !a.flags.AllowShortSelling && newQty.Sign() < 0 {
		return fmt.Errorf("%s would hold %s: %w", symbol, newQty, ShortSellNotAllowedErr)
	}

	switch {
	case sameSide(oldQty, newQty):
		if newQty.Abs().Gt(oldQty.Abs()) {
			if pos.AvgCost, err = weightedAvg(pos.AvgCost, oldQty.Abs(), price, shares.Abs()); err != nil {
				return err
			}
		}
	case oldQty.IsZero():
		pos.AvgCost = price
	case newQty.IsZero():
		pos.AvgCost = fixed.Zero
	default:
		pos.AvgCost = price
	}
	pos.Shares = newQty
	a.cash = newCash
	a.ledger = append(a.ledger, types.Transaction{
		Time:   a.broker.today.Time,
		Kind:   kind,
		Flow:   types.FlowInternal,
		Symbol: symbol,
		Shares: shares,
		Price:  price,
		Amount: cashDelta,
		Memo:   memo,
	})
	return nil
}

// Liquidate closes every open position at the quote price.
func (a *Account) Liquidate(memo string) error {
	if err := a.broker.requireDay("liquidate"); err != nil {
		return err
	}
	for _, sym := range a.Symbols() {
		held := a.positions[sym].Shares
		if held.Sign() > 0 {
			if err := a.sell(sym, held, memo); err != nil {
				return err
			}
			continue
		}
		quote, err := a.broker.QuotePrice(sym)
		if err != nil {
			return err
		}
		exec, err := a.broker.slippage.Buy(quote)
		if err != nil {
			return err
		}
		cost, err := fixed.Mul(held.Abs(), exec)
		if err != nil {
			return err
		}
		if err := a.fill(types.TransactionBuy, sym, held.Abs(), exec, cost.Neg(), memo); err != nil {
			return err
		}
	}
	return nil
}

func (a *Account) markMonthEnd(t time.Time) error {
	v, err := a.Value()
	if err != nil {
		return err
	}
	a.monthEnds = append(a.monthEnds, MonthEndMark{Time: t, Value: v})
	return nil
}

func sameSide(a, b fixed.Point) bool {
	return (a.Sign() > 0 && b.Sign() > 0) || (a.Sign() < 0 && b.Sign() < 0)
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty fixed.Point) (fixed.Point, error) {
	if existingQty.IsZero() {
		return newPrice, nil
	}
	a, err := fixed.Mul(existingAvgPrice, existingQty)
	if err != nil {
		return 0, err
	}
	b, err := fixed.Mul(newPrice, newQty)
	if err != nil {
		return 0, err
	}
	num, err := fixed.Add(a, b)
	if err != nil {
		return 0, err
	}
	den, err := fixed.Add(existingQty, newQty)
	if err != nil {
		return 0, err
	}
	return fixed.Div(num, den)
}
