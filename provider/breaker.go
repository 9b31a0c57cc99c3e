package provider

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	IsFailure        func(error) bool
}

// Breaker stops calling a vendor after FailureThreshold consecutive failures
// and lets a single probe through once OpenTimeout has passed.
type Breaker struct {
	name Provider
	cfg  BreakerConfig
	l    *zap.Logger
	now  func() time.Time

	mu           sync.Mutex
	state        int
	failures     int
	successes    int
	openedAt     time.Time
	halfInFlight bool

	mState prometheus.Gauge
}

const (
	cbClosed = iota
	cbOpen
	cbHalfOpen
)

func NewBreaker(name Provider, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsTransient
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		l:     zap.L().Named("breaker").With(zap.String("vendor", string(name))),
		now:   time.Now,
		state: cbClosed,
		mState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "airtime_vendor_breaker_state",
			Help:        "Circuit breaker state of a vendor API (0 closed, 1 open, 2 half-open).",
			ConstLabels: prometheus.Labels{"vendor": string(name)},
		}),
	}
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == cbOpen
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbClosed:
		return nil
	case cbOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		b.state = cbHalfOpen
		b.successes = 0
		b.halfInFlight = false
		fallthrough
	case cbHalfOpen:
		if b.halfInFlight {
			return ErrCircuitOpen
		}
		b.halfInFlight = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == cbHalfOpen {
		b.halfInFlight = false
	}

	if err == nil || !b.cfg.IsFailure(err) {
		switch b.state {
		case cbClosed:
			b.failures = 0
		case cbHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = cbClosed
				b.failures = 0
				b.successes = 0
				b.l.Info("circuit closed")
			}
		}
		return
	}

	switch b.state {
	case cbClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip(err)
		}
	case cbHalfOpen:
		b.trip(err)
	}
}

func (b *Breaker) trip(err error) {
	b.state = cbOpen
	b.openedAt = b.now()
	b.failures = b.cfg.FailureThreshold
	b.successes = 0
	b.halfInFlight = false
	b.l.Warn("circuit opened", zap.Error(err))
}

func (b *Breaker) Describe(ch chan<- *prometheus.Desc) {
	b.mState.Describe(ch)
}

func (b *Breaker) Collect(ch chan<- prometheus.Metric) {
	b.mu.Lock()
	b.mState.Set(float64(b.state))
	b.mu.Unlock()
	b.mState.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Breaker)(nil)
)
