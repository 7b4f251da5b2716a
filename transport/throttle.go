package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle wraps a send function with a token-bucket limiter so a
// single misbehaving or overeager replica cannot flood the outgoing
// transport faster than burst-plus-steady-state rate permits.
type Throttle[T any] struct {
	limiter *rate.Limiter
	send    func(T)
}

// NewThrottle builds a Throttle that allows ratePerSecond steady-state
// sends with a burst of up to burst before blocking.
func NewThrottle[T any](ratePerSecond float64, burst int, send func(T)) *Throttle[T] {
	return &Throttle[T]{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		send:    send,
	}
}

// Send blocks until the limiter admits another token, then forwards
// msg. Returns ctx.Err() if ctx is cancelled first.
func (t *Throttle[T]) Send(ctx context.Context, msg T) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.send(msg)
	return nil
}
