package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfoliosim/internal/engine"
	"portfoliosim/internal/fixed"
	"portfoliosim/internal/series"
)

func returns(t *testing.T, days []string, values ...float64) *series.Series {
	t.Helper()
	s := series.New("run")
	for i, d := range days {
		require.NoError(t, s.Add(date(d), values[i]))
	}
	return s
}

func TestResultStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewResultStore(ctx, filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	days := []string{"2021-01-29", "2021-02-01", "2021-02-26"}
	res := &engine.Result{
		Name:           "sma",
		Start:          date("2021-01-29"),
		End:            date("2021-02-26"),
		ReturnsDaily:   returns(t, days, 1, 1.01, 1.05),
		ReturnsMonthly: returns(t, []string{"2021-01-29", "2021-02-26"}, 1, 1.05),
		InitialCash:    fixed.Must(fixed.FromInt(10000)),
		Deposits:       fixed.Must(fixed.FromInt(10500)),
		Final:          fixed.Must(fixed.FromString("11025.12345")),
	}
	require.NoError(t, store.SaveRun(ctx, "run-1", res))

	got, err := store.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "sma", got.Name)
	assert.Equal(t, res.Start, got.Start)
	assert.Equal(t, res.End, got.End)
	assert.Equal(t, res.Final, got.Final)
	assert.Equal(t, res.Deposits, got.Deposits)
	assert.Equal(t, res.InitialCash, got.InitialCash)
	require.Equal(t, 3, got.ReturnsDaily.Len())
	require.Equal(t, 2, got.ReturnsMonthly.Len())
	v, err := got.ReturnsDaily.Get(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.01, v)

	// ids are unique
	assert.Error(t, store.SaveRun(ctx, "run-1", res))

	ids, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)

	_, err = store.LoadRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
