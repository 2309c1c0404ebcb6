package health

import (
	"context"
	"fmt"
	"time"

	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts bounds the readiness retry loop
	DefaultMaxAttempts = 5

	// DefaultBackoff is the base delay between attempts
	DefaultBackoff = 2 * time.Second

	// maxBackoff caps exponential growth between attempts
	maxBackoff = 30 * time.Second
)

// Prober turns single-shot checks into a readiness gate: an optional settle
// delay, then bounded retries with fixed or exponential backoff. A target is
// ready on its first healthy check and failed once attempts are exhausted.
type Prober struct {
	// MaxAttempts is the number of checks before giving up (min 1)
	MaxAttempts int

	// Backoff is the base delay between failed attempts
	Backoff time.Duration

	// Exponential doubles the backoff after each failed attempt
	Exponential bool

	// SettleDelay is the wait before the first check, giving a freshly
	// started stack time to bind its ports
	SettleDelay time.Duration

	logger zerolog.Logger
}

// NewProber creates a Prober with the default retry policy and no settle
// delay.
func NewProber() *Prober {
	return &Prober{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		Exponential: true,
		logger:      log.WithComponent("prober"),
	}
}

// WithMaxAttempts sets the attempt bound
func (p *Prober) WithMaxAttempts(n int) *Prober {
	p.MaxAttempts = n
	return p
}

// WithBackoff sets the base delay between attempts
func (p *Prober) WithBackoff(d time.Duration) *Prober {
	p.Backoff = d
	return p
}

// WithExponential toggles exponential backoff
func (p *Prober) WithExponential(on bool) *Prober {
	p.Exponential = on
	return p
}

// WithSettleDelay sets the wait before the first check
func (p *Prober) WithSettleDelay(d time.Duration) *Prober {
	p.SettleDelay = d
	return p
}

// WaitReady runs the readiness gate against checker. The returned result's
// Attempts counts every check issued, including a final successful one.
// Context cancellation aborts the wait immediately with an unhealthy result.
func (p *Prober) WaitReady(ctx context.Context, checker Checker) types.ProbeResult {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	if p.SettleDelay > 0 {
		p.logger.Debug().Dur("settle_delay", p.SettleDelay).Msg("waiting for stack to settle")
		if err := sleep(ctx, p.SettleDelay); err != nil {
			return cancelled(err)
		}
	}

	backoff := p.Backoff
	var last types.ProbeResult
	for attempt := 1; attempt <= attempts; attempt++ {
		last = checker.Check(ctx)
		last.Attempts = attempt

		if last.Healthy {
			p.logger.Debug().Int("attempt", attempt).Dur("latency", last.Latency).Msg("target ready")
			return last
		}
		p.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Str("message", last.Message).
			Msg("health check failed")

		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		if attempt == attempts {
			break
		}
		if backoff > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return cancelled(err)
			}
			if p.Exponential {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}
	}

	last.Message = fmt.Sprintf("unhealthy after %d attempts: %s", last.Attempts, last.Message)
	return last
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cancelled(err error) types.ProbeResult {
	return types.ProbeResult{
		Healthy:   false,
		Message:   fmt.Sprintf("probe cancelled: %v", err),
		CheckedAt: time.Now(),
	}
}
