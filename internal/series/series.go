// Package series stores timestamped rows of float64 values and restricts
// what can be read from them through a stack of visibility locks. Every lock
// narrows the window left by the previous one, so code handed a locked series
// can never read rows beyond the bounds it was given.
package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrTemporalViolation is the parent of every visibility error: reads
	// outside the window, widening locks and mismatched unlocks.
	ErrTemporalViolation = errors.New("temporal violation")
	ErrOutOfBounds       = fmt.Errorf("index out of visible range: %w", ErrTemporalViolation)
	ErrWidening          = fmt.Errorf("lock would widen visible range: %w", ErrTemporalViolation)
	ErrWrongKey          = fmt.Errorf("unlock key does not match top lock: %w", ErrTemporalViolation)
	ErrNotLocked         = fmt.Errorf("series is not locked: %w", ErrTemporalViolation)

	ErrNotMonotonic = errors.New("timestamps must be strictly increasing")
	ErrLocked       = errors.New("series is locked")
	ErrDimension    = errors.New("row width does not match series")
	ErrEmpty        = errors.New("series is empty")
)

// Key identifies the owner of a lock.
type Key uint64

type lock struct {
	key        Key
	start, end int // absolute, inclusive
}

// Series is an append-only sequence of (timestamp, row) pairs with
// strictly increasing timestamps. It is not safe for concurrent use.
type Series struct {
	name  string
	times []time.Time
	rows  [][]float64
	dims  int
	locks []lock
}

func New(name string) *Series {
	return &Series{name: name}
}

func (s *Series) Name() string { return s.name }

// Add appends a row at the tail.
func (s *Series) Add(t time.Time, values ...float64) error {
	if s.IsLocked() {
		return fmt.Errorf("add to %s: %w", s.name, ErrLocked)
	}
	if n := len(s.times); n > 0 && !t.After(s.times[n-1]) {
		return fmt.Errorf("add %s to %s after %s: %w", t.Format(time.RFC3339), s.name, s.times[n-1].Format(time.RFC3339), ErrNotMonotonic)
	}
	if len(s.rows) == 0 {
		s.dims = len(values)
	} else if len(values) != s.dims {
		return fmt.Errorf("add %d values to %s (width %d): %w", len(values), s.name, s.dims, ErrDimension)
	}
	s.times = append(s.times, t)
	s.rows = append(s.rows, append([]float64(nil), values...))
	return nil
}

// Dims returns the row width.
func (s *Series) Dims() int { return s.dims }

func (s *Series) bounds() (int, int) {
	if n := len(s.locks); n > 0 {
		top := s.locks[n-1]
		return top.start, top.end
	}
	return 0, len(s.times) - 1
}

// Len is the number of visible rows.
func (s *Series) Len() int {
	start, end := s.bounds()
	return end - start + 1
}

func (s *Series) abs(i int) (int, error) {
	start, end := s.bounds()
	if i < 0 || start+i > end {
		return 0, fmt.Errorf("%s[%d] with %d visible: %w", s.name, i, end-start+1, ErrOutOfBounds)
	}
	return start + i, nil
}

func (s *Series) Get(i, dim int) (float64, error) {
	a, err := s.abs(i)
	if err != nil {
		return 0, err
	}
	if dim < 0 || dim >= s.dims {
		return 0, fmt.Errorf("%s dim %d of %d: %w", s.name, dim, s.dims, ErrDimension)
	}
	return s.rows[a][dim], nil
}

// Row returns the visible row i. The slice is shared and must not be modified.
func (s *Series) Row(i int) ([]float64, error) {
	a, err := s.abs(i)
	if err != nil {
		return nil, err
	}
	return s.rows[a], nil
}

func (s *Series) Time(i int) (time.Time, error) {
	a, err := s.abs(i)
	if err != nil {
		return time.Time{}, err
	}
	return s.times[a], nil
}

// Last returns the last visible row and its timestamp.
func (s *Series) Last() (time.Time, []float64, error) {
	if s.Len() == 0 {
		return time.Time{}, nil, fmt.Errorf("%s: %w", s.name, ErrEmpty)
	}
	_, end := s.bounds()
	return s.times[end], s.rows[end], nil
}

func (s *Series) FirstTime() (time.Time, error) { return s.Time(0) }

func (s *Series) LastTime() (time.Time, error) { return s.Time(s.Len() - 1) }

func (s *Series) visibleTimes() []time.Time {
	start, end := s.bounds()
	return s.times[start : end+1]
}

// IndexAtOrBefore returns the visible index of the last row stamped at or
// before t, or -1 if there is none.
func (s *Series) IndexAtOrBefore(t time.Time) int {
	ts := s.visibleTimes()
	return sort.Search(len(ts), func(i int) bool { return ts[i].After(t) }) - 1
}

// ClosestIndex returns the visible index whose timestamp is nearest to t.
// Ties go to the earlier index. It returns -1 for an empty window.
func (s *Series) ClosestIndex(t time.Time) int {
	ts := s.visibleTimes()
	if len(ts) == 0 {
		return -1
	}
	hi := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(t) })
	if hi == 0 {
		return 0
	}
	if hi == len(ts) {
		return len(ts) - 1
	}
	if t.Sub(ts[hi-1]) <= ts[hi].Sub(t) {
		return hi - 1
	}
	return hi
}

// Subseq copies length visible rows starting at start into a new, unlocked
// series.
func (s *Series) Subseq(start, length int) (*Series, error) {
	if length < 0 {
		return nil, fmt.Errorf("subseq of %s with length %d: %w", s.name, length, ErrOutOfBounds)
	}
	out := &Series{name: s.name, dims: s.dims}
	if length == 0 {
		return out, nil
	}
	a, err := s.abs(start)
	if err != nil {
		return nil, err
	}
	b, err := s.abs(start + length - 1)
	if err != nil {
		return nil, err
	}
	out.times = append([]time.Time(nil), s.times[a:b+1]...)
	out.rows = make([][]float64, 0, length)
	for _, r := range s.rows[a : b+1] {
		out.rows = append(out.rows, append([]float64(nil), r...))
	}
	return out, nil
}

// Lock narrows the visible window to [start, end], given relative to the
// current window, and returns a Guard that undoes it.
func (s *Series) Lock(start, end int, key Key) (*Guard, error) {
	if start < 0 || end < start || end >= s.Len() {
		return nil, fmt.Errorf("lock %s [%d,%d] with %d visible: %w", s.name, start, end, s.Len(), ErrWidening)
	}
	base, _ := s.bounds()
	s.locks = append(s.locks, lock{key: key, start: base + start, end: base + end})
	return &Guard{series: s, key: key, depth: len(s.locks)}, nil
}

// Unlock pops the top lock if it was pushed with key.
func (s *Series) Unlock(key Key) error {
	n := len(s.locks)
	if n == 0 {
		return fmt.Errorf("unlock %s: %w", s.name, ErrNotLocked)
	}
	if s.locks[n-1].key != key {
		return fmt.Errorf("unlock %s with key %d, top is %d: %w", s.name, key, s.locks[n-1].key, ErrWrongKey)
	}
	s.locks = s.locks[:n-1]
	return nil
}

func (s *Series) IsLocked() bool { return len(s.locks) > 0 }

// Depth is the number of locks on the stack.
func (s *Series) Depth() int { return len(s.locks) }

// Guard releases one lock. Release is idempotent; releasing a guard that is
// not on top of the stack is an error and leaves the stack unchanged.
type Guard struct {
	series   *Series
	key      Key
	depth    int
	released bool
}

func (g *Guard) Key() Key { return g.key }

func (g *Guard) Release() error {
	if g == nil || g.released {
		return nil
	}
	if g.series.Depth() != g.depth {
		return fmt.Errorf("release %s lock %d at depth %d, stack depth %d: %w", g.series.name, g.key, g.depth, g.series.Depth(), ErrWrongKey)
	}
	if err := g.series.Unlock(g.key); err != nil {
		return err
	}
	g.released = true
	return nil
}
