package jobmetrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_750_000_000, 0) }

	require.NoError(t, m.Track("ledger_sync").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger_sync").End(boom), boom)
	permanent := fmt.Errorf("decode: %w", asynq.SkipRetry)
	require.ErrorIs(t, m.Track("ledger_sync").End(permanent), asynq.SkipRetry)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger_sync", StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger_sync", StatusFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger_sync", StatusDropped)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger_sync", StatusDropped)))
	require.Equal(t, 1_750_000_000.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("ledger_sync")))
}

func TestAddDivergences(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddDivergences("stock_balance", 7, 2)
	m.AddDivergences("stock_balance", 7, 0)
	require.Equal(t, 2.0, testutil.ToFloat64(m.divergences.WithLabelValues("stock_balance", "7")))

	var nilMetrics *Metrics
	nilMetrics.AddDivergences("gl", 1, 3)
	require.NoError(t, nilMetrics.Track("gl").End(nil))
}
