package prometrics_test

import (
	"testing"

	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSpecs(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := prometrics.New(reg, "", "")

	counters, histograms := r.RegisterSpecs(observability.CounterSpecs, observability.HistogramSpecs)
	require.Len(t, counters, len(observability.CounterSpecs))
	require.Len(t, histograms, len(observability.HistogramSpecs))

	counters[observability.MPurchaseOutcomes].Add(1,
		observability.L("result", "committed"),
		observability.L("reason", ""),
	)
	histograms[observability.MUsecaseDuration].Observe(0.2, observability.L("use_case", "purchase.request"))

	n, err := testutil.GatherAndCount(reg, "purchase_outcomes_total", "usecase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCounterRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := prometrics.New(reg, "shop", "")

	assert.NotPanics(t, func() {
		r.Counter("ledger_refunds_total", "refunds", "reason")
		r.Counter("ledger_refunds_total", "refunds", "reason").Add(2, observability.L("reason", "inventory_full"))
	})

	n, err := testutil.GatherAndCount(reg, "shop_ledger_refunds_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
