package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"portfoliosim/internal/fixed"
	"portfoliosim/internal/series"
	"portfoliosim/types"
)

var (
	ErrDataInconsistency = errors.New("data inconsistency")
	ErrRunIncomplete     = errors.New("run has ticks left")
	ErrNoRun             = errors.New("no run in progress")
	ErrRunInProgress     = errors.New("run already in progress")
	ErrEmptyWindow       = errors.New("run window contains no ticks")
)

// Result is what a finished run hands back.
type Result struct {
	Name  string
	Start time.Time
	End   time.Time

	// ReturnsDaily and ReturnsMonthly hold the time-weighted cumulative
	// return multiplier. Both start with 1.0 at the first tick.
	ReturnsDaily   *series.Series
	ReturnsMonthly *series.Series

	InitialCash  fixed.Point
	Deposits     fixed.Point
	Final        fixed.Point
	MonthEnds    []MonthEndMark
	Transactions []types.Transaction
}

// Multiplier is the last cumulative return of the run.
func (r *Result) Multiplier() float64 {
	_, row, err := r.ReturnsDaily.Last()
	if err != nil {
		return 1
	}
	return row[0]
}

type run struct {
	name      string
	predictor Predictor
	account   *Account
	guide     *series.Series
	guard     *series.Guard

	// ticks is only filled by the fast driver.
	ticks     []time.Time
	monthEnds []bool
	next      int
	last      int

	multiplier float64
	prevValue  fixed.Point
	daily      *series.Series
	monthly    *series.Series
	bar        *progressbar.ProgressBar
}

// driver is the run loop shared by Simulation and FastSim. Only the full
// driver validates the data of every tick.
type driver struct {
	broker   *Broker
	cfg      *SimulationConfig
	validate bool
	run      *run
}

// Simulation is the reference driver. Every tick checks that it falls on a
// weekday and that every asset has a row stamped exactly that day.
type Simulation struct {
	driver
}

func NewSimulation(broker *Broker, cfg *SimulationConfig) *Simulation {
	return &Simulation{driver{broker: broker, cfg: cfg, validate: true}}
}

func (d *driver) Broker() *Broker { return d.broker }

// SetupRun prepares a run over the guide's rows in [start, end]. TimeBegin and
// TimeEnd select the first and last guide row.
func (d *driver) SetupRun(factory PredictorFactory, start, end time.Time, name string) error {
	if d.run != nil {
		return fmt.Errorf("setup %q: %w", name, ErrRunInProgress)
	}
	if err := d.broker.Reset(); err != nil {
		return err
	}
	if d.cfg.account.initialCash.Sign() <= 0 {
		return fmt.Errorf("initial cash %s: %w", d.cfg.account.initialCash, NonPositiveValueErr)
	}
	guide, err := d.broker.store.Get(d.cfg.guide)
	if err != nil {
		return fmt.Errorf("guide: %w", err)
	}
	startIdx, endIdx, err := window(guide, start, end)
	if err != nil {
		return err
	}
	guard, err := guide.Lock(startIdx, endIdx, d.broker.NewLockKey())
	if err != nil {
		return err
	}

	r := &run{
		name:       name,
		guide:      guide,
		guard:      guard,
		last:       guide.Len() - 1,
		multiplier: 1,
		prevValue:  d.cfg.account.initialCash,
		daily:      series.New(name + " daily"),
		monthly:    series.New(name + " monthly"),
	}
	if !d.validate {
		r.ticks, r.monthEnds = calendar(guide)
	}

	first, _ := guide.Time(0)
	if err := d.checkCoverage(first); err != nil {
		_ = guard.Release()
		return err
	}
	d.broker.today = types.TimeInfo{Time: first}
	r.account, err = d.broker.OpenAccount(name, d.cfg.account.initialCash, d.cfg.account.accountType, d.cfg.account.flags())
	if err != nil {
		_ = guard.Release()
		return err
	}

	if r.predictor, err = factory(); err == nil {
		err = r.predictor.Init(d.broker.View(), append([]string(nil), d.cfg.assets...))
	}
	if err != nil {
		_ = guard.Release()
		_ = d.broker.Reset()
		return fmt.Errorf("predictor for %q: %w", name, err)
	}

	if d.validate && d.cfg.showProgress {
		r.bar = initProgressBar(r.last + 1)
	}
	d.run = r

	log.WithFields(log.Fields{
		"run":   name,
		"start": first.Format(time.DateOnly),
		"ticks": r.last + 1,
		"fast":  !d.validate,
	}).Debug("run set up")
	return nil
}

// window resolves [start, end] to guide indices.
func window(guide *series.Series, start, end time.Time) (int, int, error) {
	startIdx := 0
	if !start.Equal(TimeBegin) {
		i := guide.IndexAtOrBefore(start)
		if i < 0 {
			startIdx = 0
		} else if t, _ := guide.Time(i); t.Before(start) {
			startIdx = i + 1
		} else {
			startIdx = i
		}
	}
	endIdx := guide.Len() - 1
	if !end.Equal(TimeEnd) {
		endIdx = guide.IndexAtOrBefore(end)
	}
	if endIdx < 0 || startIdx > endIdx {
		return 0, 0, fmt.Errorf("%s between %s and %s: %w", guide.Name(), start.Format(time.DateOnly), end.Format(time.DateOnly), ErrEmptyWindow)
	}
	return startIdx, endIdx, nil
}

// calendar copies the visible tick times of the guide and flags the ones
// followed by a tick in another month.
func calendar(guide *series.Series) ([]time.Time, []bool) {
	n := guide.Len()
	ticks := make([]time.Time, n)
	for i := range ticks {
		ticks[i], _ = guide.Time(i)
	}
	monthEnds := make([]bool, n)
	for i := 0; i < n-1; i++ {
		monthEnds[i] = !types.SameMonth(ticks[i], ticks[i+1])
	}
	return ticks, monthEnds
}

// RunTo advances the run through every tick stamped at or before end. After
// an error the run should be aborted.
func (d *driver) RunTo(end time.Time) error {
	r := d.run
	if r == nil {
		return ErrNoRun
	}
	target := d.lastTickAtOrBefore(end)
	for r.next <= target {
		if err := d.tick(r.next); err != nil {
			return err
		}
		r.next++
		if r.bar != nil {
			_ = r.bar.Add(1)
		}
	}
	return nil
}

func (d *driver) lastTickAtOrBefore(end time.Time) int {
	r := d.run
	var idx int
	if r.ticks != nil {
		idx = len(r.ticks) - 1
		for idx >= 0 && r.ticks[idx].After(end) {
			idx--
		}
	} else {
		idx = r.guide.IndexAtOrBefore(end)
	}
	return min(idx, r.last)
}

func (d *driver) timeInfo(i int) (types.TimeInfo, error) {
	r := d.run
	if r.ticks != nil {
		t := r.ticks[i]
		return types.TimeInfo{Time: t, BusinessDay: types.IsWeekday(t), LastDayOfMonth: r.monthEnds[i]}, nil
	}
	t, err := r.guide.Time(i)
	if err != nil {
		return types.TimeInfo{}, err
	}
	ti := types.TimeInfo{Time: t, BusinessDay: types.IsWeekday(t)}
	if i < r.last {
		next, err := r.guide.Time(i + 1)
		if err != nil {
			return types.TimeInfo{}, err
		}
		ti.LastDayOfMonth = !types.SameMonth(t, next)
	}
	return ti, nil
}

func (d *driver) tick(i int) error {
	r := d.run
	ti, err := d.timeInfo(i)
	if err != nil {
		return err
	}
	if d.validate && !ti.BusinessDay {
		return fmt.Errorf("%s is a %s: %w", ti.Time.Format(time.DateOnly), ti.Time.Weekday(), ErrDataInconsistency)
	}
	if err := d.broker.SetNewDay(ti); err != nil {
		return err
	}
	if d.validate {
		if err := d.checkRows(ti.Time); err != nil {
			return err
		}
	}

	dist, err := r.predictor.SelectDistribution()
	if err != nil {
		return fmt.Errorf("select distribution on %s: %w", ti.Time.Format(time.DateOnly), err)
	}
	dist = dist.RemoveZeroWeights(r.account.flags.Epsilon)
	if err := r.account.UpdatePositions(dist); err != nil {
		return fmt.Errorf("rebalance on %s: %w", ti.Time.Format(time.DateOnly), err)
	}
	if err := d.broker.DoEndOfDayBusiness(); err != nil {
		return err
	}
	if ti.LastDayOfMonth && d.cfg.monthlyDeposit.Sign() > 0 {
		if err := r.account.Deposit(d.cfg.monthlyDeposit, types.FlowExternal, "monthly deposit"); err != nil {
			return err
		}
	}

	if err := d.recordReturn(ti, i); err != nil {
		return err
	}
	if i < r.last {
		return d.broker.FinishDay(false)
	}
	return nil
}

// checkCoverage fails unless every configured asset, and every other series
// the broker will lock each day, has a row at or before the first tick.
func (d *driver) checkCoverage(first time.Time) error {
	names := append(append([]string(nil), d.cfg.assets...), d.broker.store.Names()...)
	for _, name := range names {
		s, err := d.broker.store.Get(name)
		if err != nil {
			return err
		}
		if s.IndexAtOrBefore(first) < 0 {
			return fmt.Errorf("%s has no row at or before %s: %w", name, first.Format(time.DateOnly), ErrDataInconsistency)
		}
	}
	return nil
}

// checkRows fails unless every asset has a row stamped exactly t.
func (d *driver) checkRows(t time.Time) error {
	for _, name := range d.cfg.assets {
		s, err := d.broker.store.Get(name)
		if err != nil {
			return err
		}
		ts, _, err := s.Last()
		if err != nil || !ts.Equal(t) {
			return fmt.Errorf("%s has no row on %s: %w", name, t.Format(time.DateOnly), ErrDataInconsistency)
		}
	}
	return nil
}

// recordReturn chains today's return into the cumulative multiplier. External
// flows are taken out so that deposits do not count as performance. The first
// tick anchors both series at 1.0 and its closing value becomes the base.
func (d *driver) recordReturn(ti types.TimeInfo, i int) error {
	r := d.run
	value, err := r.account.Value()
	if err != nil {
		return err
	}
	flow := r.account.drainExternalFlows()
	if i == 0 {
		r.prevValue = value
		if err := r.daily.Add(ti.Time, r.multiplier); err != nil {
			return err
		}
		return r.monthly.Add(ti.Time, r.multiplier)
	}
	if r.prevValue.Sign() <= 0 {
		return fmt.Errorf("return on %s from %s: %w", ti.Time.Format(time.DateOnly), r.prevValue, NonPositiveValueErr)
	}
	growth, err := fixed.Sub(value, flow)
	if err != nil {
		return err
	}
	r.multiplier *= growth.Float() / r.prevValue.Float()
	r.prevValue = value

	if err := r.daily.Add(ti.Time, r.multiplier); err != nil {
		return err
	}
	if ti.LastDayOfMonth || i == r.last {
		return r.monthly.Add(ti.Time, r.multiplier)
	}
	return nil
}

// FinishRun liquidates the account and closes the run. Every tick must have
// been processed; use Abort to stop early.
func (d *driver) FinishRun() (*Result, error) {
	r := d.run
	if r == nil {
		return nil, ErrNoRun
	}
	if r.next <= r.last {
		return nil, fmt.Errorf("%q at tick %d of %d: %w", r.name, r.next, r.last+1, ErrRunIncomplete)
	}
	if err := r.account.Liquidate("end of run"); err != nil {
		return nil, err
	}
	final := r.account.Cash()
	if err := d.broker.FinishDay(true); err != nil {
		return nil, err
	}
	if err := r.guard.Release(); err != nil {
		return nil, err
	}
	if r.bar != nil {
		_ = r.bar.Finish()
	}
	d.run = nil

	start, _ := r.daily.Time(0)
	end, _, _ := r.daily.Last()
	res := &Result{
		Name:           r.name,
		Start:          start,
		End:            end,
		ReturnsDaily:   r.daily,
		ReturnsMonthly: r.monthly,
		InitialCash:    d.cfg.account.initialCash,
		Deposits:       r.account.TotalDeposits(),
		Final:          final,
		MonthEnds:      r.account.MonthEnds(),
		Transactions:   r.account.Transactions(),
	}
	log.WithFields(log.Fields{
		"run":        r.name,
		"final":      final.String(),
		"multiplier": res.Multiplier(),
	}).Debug("run finished")
	return res, nil
}

// Abort drops the current run and every lock it holds.
func (d *driver) Abort() error {
	r := d.run
	if r == nil {
		return nil
	}
	d.run = nil
	return errors.Join(d.broker.Reset(), r.guard.Release())
}

// Run is SetupRun, RunTo(end) and FinishRun. A failed run is aborted.
func (d *driver) Run(factory PredictorFactory, start, end time.Time, name string) (*Result, error) {
	if err := d.SetupRun(factory, start, end, name); err != nil {
		return nil, err
	}
	if err := d.RunTo(end); err != nil {
		return nil, errors.Join(err, d.Abort())
	}
	res, err := d.FinishRun()
	if err != nil {
		return nil, errors.Join(err, d.Abort())
	}
	return res, nil
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Simulating..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
