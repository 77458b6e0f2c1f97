package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	dompayment "github.com/Zhima-Mochi/gameshop/internal/domain/payment"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"
)

const (
	DefaultDelay       = 2 * time.Second
	DefaultDeclineRate = 0.1

	componentGateway = "payment_gateway"
	declineMessage   = "Payment failed. Please try again."
)

// Simulator is a stand-in for a real payment provider. Every authorization waits a
// fixed delay and is then declined with probability declineRate.
type Simulator struct {
	mu          sync.Mutex
	random      *rand.Rand
	delay       time.Duration
	declineRate float64
	now         func() time.Time

	log        observability.Logger
	authorized observability.Counter // payment_authorizations_total{status,reason}
}

type Option func(*Simulator)

func WithDelay(d time.Duration) Option {
	return func(s *Simulator) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithDeclineRate is clamped to [0, 1].
func WithDeclineRate(r float64) Option {
	return func(s *Simulator) {
		s.declineRate = min(max(r, 0), 1)
	}
}

func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) {
		if r != nil {
			s.random = r
		}
	}
}

// WithClock sets the clock used for card expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSimulator(tel observability.Observability, opts ...Option) *Simulator {
	if tel == nil {
		tel = observability.Nop()
	}
	s := &Simulator{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		delay:       DefaultDelay,
		declineRate: DefaultDeclineRate,
		now:         time.Now,
		log:         tel.Logger().With(observability.F("component", componentGateway)),
		authorized:  tel.Metrics().Counter(observability.MPaymentAuthorizations),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize returns ctx.Err() without a decision when ctx ends before the delay elapses.
func (s *Simulator) Authorize(ctx context.Context, charge dompayment.Charge) (dompayment.Decision, error) {
	if charge.Amount < 0 {
		return dompayment.Decision{}, dompayment.ErrInvalidAmount
	}
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("charge_ref", charge.Reference),
		observability.F("amount", charge.Amount),
	)

	if !charge.Card.IsZero() {
		if err := charge.Card.Validate(s.now()); err != nil {
			d := dompayment.Declined(dompayment.DeclineInvalidCard, dompayment.Feedback(err))
			s.record(logger, d)
			return d, nil
		}
		logger = logger.With(observability.F("card_last4", charge.Card.Last4()))
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		logger.Info("payment_authorization_aborted", observability.F("error", ctx.Err()))
		return dompayment.Decision{}, ctx.Err()
	case <-timer.C:
	}

	d := dompayment.Approved()
	if s.roll() < s.declineRate {
		d = dompayment.Declined(dompayment.DeclineRandom, declineMessage)
	}
	s.record(logger, d)
	return d, nil
}

func (s *Simulator) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.random.Float64()
}

func (s *Simulator) record(logger observability.Logger, d dompayment.Decision) {
	s.authorized.Add(1,
		observability.L("status", string(d.Status)),
		observability.L("reason", d.Reason),
	)
	logger.Info("payment_authorized",
		observability.F("status", string(d.Status)),
		observability.F("reason", d.Reason),
	)
}

func (s *Simulator) DeclineRate() float64 { return s.declineRate }
