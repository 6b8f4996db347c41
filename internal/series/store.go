package series

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrUnknownSeries = errors.New("unknown series")

// View is the read-only surface of a Series. It allows further narrowing but
// neither unlocking nor appending.
type View interface {
	Name() string
	Dims() int
	Len() int
	Get(i, dim int) (float64, error)
	Row(i int) ([]float64, error)
	Time(i int) (time.Time, error)
	FirstTime() (time.Time, error)
	LastTime() (time.Time, error)
	Last() (time.Time, []float64, error)
	IndexAtOrBefore(t time.Time) int
	ClosestIndex(t time.Time) int
	Subseq(start, length int) (*Series, error)
	Lock(start, end int, key Key) (*Guard, error)
}

var _ View = (*Series)(nil)

// KeyGen hands out increasing lock keys. The zero value starts at 1.
type KeyGen struct {
	last Key
}

func (k *KeyGen) Next() Key {
	k.last++
	return k.last
}

// Store is the set of series one simulation works on.
type Store struct {
	series map[string]*Series
	names  []string
}

func NewStore() *Store {
	return &Store{series: make(map[string]*Series)}
}

func (st *Store) Put(s *Series) error {
	if _, ok := st.series[s.Name()]; ok {
		return fmt.Errorf("series %q already in store", s.Name())
	}
	st.series[s.Name()] = s
	st.names = append(st.names, s.Name())
	sort.Strings(st.names)
	return nil
}

func (st *Store) Get(name string) (*Series, error) {
	s, ok := st.series[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownSeries)
	}
	return s, nil
}

// Names returns the series names in sorted order.
func (st *Store) Names() []string {
	return append([]string(nil), st.names...)
}

// LockThrough narrows every series so that its last visible row is the last
// one stamped at or before t. A series with no such row fails the whole call
// and any locks already taken are released.
func (st *Store) LockThrough(t time.Time, key Key) (*MultiGuard, error) {
	mg := &MultiGuard{}
	for _, name := range st.names {
		s := st.series[name]
		idx := s.IndexAtOrBefore(t)
		if idx < 0 {
			_ = mg.Release()
			return nil, fmt.Errorf("lock %s through %s: no data: %w", name, t.Format(time.DateOnly), ErrOutOfBounds)
		}
		g, err := s.Lock(0, idx, key)
		if err != nil {
			_ = mg.Release()
			return nil, err
		}
		mg.guards = append(mg.guards, g)
	}
	return mg, nil
}

// MultiGuard releases a group of guards in reverse acquisition order.
type MultiGuard struct {
	guards []*Guard
}

func (mg *MultiGuard) Release() error {
	if mg == nil {
		return nil
	}
	var errs []error
	for i := len(mg.guards) - 1; i >= 0; i-- {
		if err := mg.guards[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
