// Package embed defines the text embedding contract shared by the importer
// and the retriever, plus a guard that adds rate limiting, a circuit breaker
// and vector validation around any provider.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/service-catalog/pkg/metrics"
	"github.com/WessleyAI/service-catalog/pkg/resilience"
)

var (
	// ErrNoVector is returned when a provider answers without a vector.
	ErrNoVector = errors.New("embed: no vector returned")
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("embed: dimension mismatch")
	// ErrUnavailable marks provider failures that are not specific to the
	// text being embedded: transport errors, 5xx and 429 answers.
	ErrUnavailable = errors.New("embed: provider unavailable")
)

// Unavailable reports whether err says the provider itself is failing, as
// opposed to rejecting one input. Only these errors trip the guard breaker.
func Unavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// UnavailableStatus reports whether an HTTP status means the provider is
// failing rather than rejecting the request.
func UnavailableStatus(code int) bool {
	return code >= 500 || code == 429
}

// Embedder turns a text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

func (f Func) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// GuardOpts configures Guard.
type GuardOpts struct {
	// Dimensions is the expected vector length. Zero disables the check.
	Dimensions int
	// Rate is the sustained calls per second. Zero disables limiting.
	Rate  float64
	Burst int
	// Breaker configures the circuit breaker wrapped around the provider.
	// A nil IsFailure defaults to Unavailable.
	Breaker resilience.BreakerOpts
	// Latency, if set, observes the duration of every provider call.
	Latency *metrics.Histogram
}

// Guarded decorates an Embedder.
type Guarded struct {
	next    Embedder
	dims    int
	limiter *rate.Limiter
	breaker *resilience.Breaker
	latency *metrics.Histogram
}

// Guard wraps next with the protections configured in opts.
func Guard(next Embedder, opts GuardOpts) *Guarded {
	if opts.Breaker.IsFailure == nil {
		opts.Breaker.IsFailure = Unavailable
	}
	g := &Guarded{
		next:    next,
		dims:    opts.Dimensions,
		breaker: resilience.NewBreaker(opts.Breaker),
		latency: opts.Latency,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return g
}

// Breaker exposes the breaker for health reporting.
func (g *Guarded) Breaker() *resilience.Breaker { return g.breaker }

// Embed waits for the limiter, calls the provider through the breaker and
// validates the returned vector.
func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed: rate limit: %w", err)
		}
	}

	var vec []float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		if g.latency != nil {
			defer g.latency.Since(time.Now())
		}
		v, err := g.next.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vec) == 0 {
		return nil, ErrNoVector
	}
	if g.dims > 0 && len(vec) != g.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), g.dims)
	}
	return vec, nil
}
