package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"portfoliosim/internal/fixed"
	"portfoliosim/internal/pricing"
	"portfoliosim/internal/series"
	"portfoliosim/types"
)

var (
	ErrStateOrder       = errors.New("broker call out of order")
	ErrUnknownAccount   = errors.New("unknown account")
	ErrDuplicateAccount = errors.New("account already open")
)

// tradingDaysPerYear is the day count used to accrue cash interest.
const tradingDaysPerYear = 252

type brokerState int

const (
	stateIdle brokerState = iota
	stateDayOpen
	stateSettled
	stateClosed
	stateFinished
)

func (s brokerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDayOpen:
		return "day open"
	case stateSettled:
		return "settled"
	case stateClosed:
		return "closed"
	case stateFinished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Broker holds the accounts of a run and drives the daily cycle
//
//	Idle -> DayOpen -> Settled -> Closed -> DayOpen -> ... -> Finished
//
// While a day is open every series in the store is locked through today, so
// nothing reachable from the broker can see future rows.
type Broker struct {
	store    *series.Store
	keys     series.KeyGen
	cfg      *BrokerConfig
	slippage pricing.FixedSlippage

	accounts     map[string]*Account
	accountNames []string

	today    types.TimeInfo
	state    brokerState
	dayGuard *series.MultiGuard
}

func NewBroker(store *series.Store, cfg *BrokerConfig) (*Broker, error) {
	if cfg.valuation == nil || cfg.quote == nil {
		return nil, errors.New("broker needs a valuation and a quote price model")
	}
	slip, err := cfg.slippage.Fixed()
	if err != nil {
		return nil, err
	}
	return &Broker{
		store:    store,
		cfg:      cfg,
		slippage: slip,
		accounts: make(map[string]*Account),
	}, nil
}

func (b *Broker) Today() types.TimeInfo { return b.today }

func (b *Broker) Store() *series.Store { return b.store }

// View returns the read-only surface handed to predictors.
func (b *Broker) View() BrokerView { return brokerView{b: b} }

func (b *Broker) NewLockKey() series.Key { return b.keys.Next() }

func (b *Broker) orderErr(op string) error {
	return fmt.Errorf("%s while %s: %w", op, b.state, ErrStateOrder)
}

// requireDay fails unless a day is open, i.e. the store is locked through
// today.
func (b *Broker) requireDay(op string) error {
	if b.state != stateDayOpen && b.state != stateSettled {
		return b.orderErr(op)
	}
	return nil
}

func (b *Broker) OpenAccount(name string, initial fixed.Point, accountType types.AccountType, flags AccountFlags) (*Account, error) {
	if b.state != stateIdle {
		return nil, b.orderErr("open account " + name)
	}
	if _, ok := b.accounts[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDuplicateAccount)
	}
	if initial.Sign() < 0 {
		return nil, fmt.Errorf("open %q with %s: %w", name, initial, InsufficientBalanceErr)
	}
	a := newAccount(b, name, initial, accountType, flags)
	b.accounts[name] = a
	b.accountNames = append(b.accountNames, name)
	sort.Strings(b.accountNames)
	return a, nil
}

func (b *Broker) Account(name string) (*Account, error) {
	a, ok := b.accounts[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownAccount)
	}
	return a, nil
}

// Accounts returns the open account names in sorted order.
func (b *Broker) Accounts() []string {
	return append([]string(nil), b.accountNames...)
}

// Reset returns the broker to Idle from any state. Accounts are dropped and
// the day lock, if any, is released.
func (b *Broker) Reset() error {
	err := b.dayGuard.Release()
	b.dayGuard = nil
	b.accounts = make(map[string]*Account)
	b.accountNames = nil
	b.today = types.TimeInfo{}
	b.state = stateIdle
	return err
}

// SetNewDay opens the day described by ti.
func (b *Broker) SetNewDay(ti types.TimeInfo) error {
	if b.state != stateIdle && b.state != stateClosed {
		return b.orderErr("set new day " + ti.Time.Format(time.DateOnly))
	}
	if b.state == stateClosed && !ti.Time.After(b.today.Time) {
		return fmt.Errorf("new day %s not after %s: %w", ti.Time.Format(time.DateOnly), b.today.Time.Format(time.DateOnly), ErrStateOrder)
	}
	mg, err := b.store.LockThrough(ti.Time, b.keys.Next())
	if err != nil {
		return err
	}
	b.dayGuard = mg
	b.today = ti
	b.state = stateDayOpen
	return nil
}

func (b *Broker) series(symbol string) (*series.Series, error) {
	return b.store.Get(symbol)
}

func (b *Broker) price(model pricing.PriceModel, symbol string) (fixed.Point, error) {
	if err := b.requireDay("price " + symbol); err != nil {
		return 0, err
	}
	s, err := b.series(symbol)
	if err != nil {
		return 0, err
	}
	_, row, err := s.Last()
	if err != nil {
		return 0, err
	}
	p, err := pricing.FixedPrice(model, row)
	if err != nil {
		return 0, fmt.Errorf("%s on %s: %w", symbol, b.today.Time.Format(time.DateOnly), err)
	}
	return p, nil
}

// ValuationPrice is the mark-to-market price of symbol as of today.
func (b *Broker) ValuationPrice(symbol string) (fixed.Point, error) {
	return b.price(b.cfg.valuation, symbol)
}

// QuotePrice is the execution price of symbol before slippage.
func (b *Broker) QuotePrice(symbol string) (fixed.Point, error) {
	return b.price(b.cfg.quote, symbol)
}

// DoEndOfDayBusiness accrues interest, pays dividends and records month-end
// values for every account.
func (b *Broker) DoEndOfDayBusiness() error {
	if b.state != stateDayOpen {
		return b.orderErr("end of day business")
	}
	for _, name := range b.accountNames {
		a := b.accounts[name]
		if err := b.accrueInterest(a); err != nil {
			return fmt.Errorf("interest for %s: %w", name, err)
		}
		if err := b.payDividends(a); err != nil {
			return fmt.Errorf("dividends for %s: %w", name, err)
		}
		if b.today.LastDayOfMonth {
			if err := a.markMonthEnd(b.today.Time); err != nil {
				return err
			}
		}
	}
	b.state = stateSettled
	return nil
}

func (b *Broker) accrueInterest(a *Account) error {
	if b.cfg.cashInterestRate.IsZero() || !b.today.BusinessDay || a.Cash().Sign() <= 0 {
		return nil
	}
	yearly, err := fixed.Mul(a.Cash(), b.cfg.cashInterestRate)
	if err != nil {
		return err
	}
	daily, err := fixed.DivTrunc(yearly, fixed.Must(fixed.FromInt(tradingDaysPerYear)))
	if err != nil {
		return err
	}
	if daily.IsZero() {
		return nil
	}
	return a.credit(types.TransactionInterest, types.FlowInternal, "", daily, "cash interest")
}

// payDividends credits the dividend column of rows stamped today. Short
// positions pay the dividend instead.
func (b *Broker) payDividends(a *Account) error {
	if !b.cfg.payDividends {
		return nil
	}
	field := int(b.cfg.dividendField)
	for _, sym := range a.Symbols() {
		s, err := b.series(sym)
		if err != nil {
			return err
		}
		ts, row, err := s.Last()
		if err != nil {
			return err
		}
		if !ts.Equal(b.today.Time) || field >= len(row) || row[field] == 0 {
			continue
		}
		perShare, err := fixed.FromFloat(row[field])
		if err != nil {
			return fmt.Errorf("%s dividend: %w", sym, err)
		}
		amount, err := fixed.Mul(a.Position(sym), perShare)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			continue
		}
		log.WithFields(log.Fields{
			"account": a.Name(),
			"symbol":  sym,
			"amount":  amount.String(),
		}).Debug("dividend")
		if err := a.credit(types.TransactionDividend, types.FlowInternal, sym, amount, "dividend"); err != nil {
			return err
		}
	}
	return nil
}

// FinishDay closes the day and releases its lock. The last day of a run
// moves the broker to Finished; only Reset leaves that state.
func (b *Broker) FinishDay(last bool) error {
	if b.state != stateSettled {
		return b.orderErr("finish day")
	}
	if err := b.dayGuard.Release(); err != nil {
		return fmt.Errorf("release day lock %s: %w", b.today.Time.Format(time.DateOnly), err)
	}
	b.dayGuard = nil
	if last {
		b.state = stateFinished
	} else {
		b.state = stateClosed
	}
	return nil
}
