package payment_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	dompayment "github.com/Zhima-Mochi/gameshop/internal/domain/payment"
	"github.com/Zhima-Mochi/gameshop/internal/infrastructure/payment"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorApprovesWhenDeclineRateZero(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(), payment.WithDelay(0), payment.WithDeclineRate(0))
	for range 20 {
		d, err := sim.Authorize(context.Background(), dompayment.Charge{Reference: "tx", Amount: 100})
		require.NoError(t, err)
		assert.True(t, d.Approved())
	}
}

func TestSimulatorDeclinesWhenDeclineRateOne(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(), payment.WithDelay(0), payment.WithDeclineRate(1))
	d, err := sim.Authorize(context.Background(), dompayment.Charge{Reference: "tx", Amount: 100})
	require.NoError(t, err)
	assert.False(t, d.Approved())
	assert.Equal(t, dompayment.DeclineRandom, d.Reason)
	assert.NotEmpty(t, d.Message)
}

func TestSimulatorDeclineRateIsRoughlyHonoured(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(),
		payment.WithDelay(0),
		payment.WithRand(rand.New(rand.NewSource(42))),
	)
	const n = 2000
	declined := 0
	for range n {
		d, err := sim.Authorize(context.Background(), dompayment.Charge{Amount: 1})
		require.NoError(t, err)
		if !d.Approved() {
			declined++
		}
	}
	assert.InDelta(t, payment.DefaultDeclineRate, float64(declined)/n, 0.03)
}

func TestSimulatorRejectsNegativeAmount(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(), payment.WithDelay(0))
	_, err := sim.Authorize(context.Background(), dompayment.Charge{Amount: -1})
	assert.ErrorIs(t, err, dompayment.ErrInvalidAmount)
}

func TestSimulatorDeclinesInvalidCardWithoutDelay(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(), payment.WithDelay(time.Hour))
	start := time.Now()
	d, err := sim.Authorize(context.Background(), dompayment.Charge{
		Amount: 100,
		Card:   dompayment.Card{Number: "1234"},
	})
	require.NoError(t, err)
	assert.Equal(t, dompayment.DeclineInvalidCard, d.Reason)
	assert.Equal(t, "enter a valid card number (16 digits)", d.Message)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimulatorAcceptsValidCard(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	sim := payment.NewSimulator(observability.Nop(),
		payment.WithDelay(0),
		payment.WithDeclineRate(0),
		payment.WithClock(func() time.Time { return now }),
	)
	d, err := sim.Authorize(context.Background(), dompayment.Charge{
		Amount: 100,
		Card: dompayment.Card{
			Number: "4242 4242 4242 4242",
			Holder: "Ada",
			Expiry: "12/27",
			CVV:    "123",
		},
	})
	require.NoError(t, err)
	assert.True(t, d.Approved())
}

func TestSimulatorReturnsOnCancel(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(), payment.WithDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := sim.Authorize(ctx, dompayment.Charge{Amount: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatorWaitsForDelay(t *testing.T) {
	sim := payment.NewSimulator(observability.Nop(), payment.WithDelay(30*time.Millisecond), payment.WithDeclineRate(0))
	start := time.Now()
	_, err := sim.Authorize(context.Background(), dompayment.Charge{Amount: 1})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
