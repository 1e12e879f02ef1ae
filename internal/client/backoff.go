package client

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
	reconnectFactor       = 2.0
	reconnectJitter       = 0.25
	defaultRetryLimit     = 10
)

// Backoff is a capped exponential reconnect policy with proportional jitter.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64

	// rnd returns a value in [0, 1); tests pin it.
	rnd func() float64
}

// DefaultBackoff starts at one second, doubles up to thirty seconds and
// adds ±25% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: reconnectInitialDelay,
		Max:     reconnectMaxDelay,
		Factor:  reconnectFactor,
		Jitter:  reconnectJitter,
	}
}

// Delay returns the wait after the given number of consecutive failures
// (starting at 1), rounded to whole milliseconds.
func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = reconnectInitialDelay
	}
	factor := b.Factor
	if factor < 1 {
		factor = reconnectFactor
	}
	base := float64(initial) * math.Pow(factor, float64(failures-1))
	if b.Max > 0 && base > float64(b.Max) {
		base = float64(b.Max)
	}
	rnd := b.rnd
	if rnd == nil {
		rnd = rand.Float64
	}
	jitter := 1.0 + (rnd()-0.5)*2*b.Jitter // range [1-J, 1+J]
	return time.Duration(base * jitter).Round(time.Millisecond)
}

// dialError is a failed websocket handshake. StatusCode is set when the
// server answered with an HTTP status instead of upgrading.
type dialError struct {
	StatusCode int
	Err        error
}

func (e *dialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("handshake rejected (%d): %s", e.StatusCode, shortenError(e.Err))
	}
	return "connect: " + shortenError(e.Err)
}

func (e *dialError) Unwrap() error { return e.Err }

func isNonRetriableDialError(err error) bool {
	var de *dialError
	if !errors.As(err, &de) {
		return false
	}
	// Retry for backpressure and transient timeout statuses.
	if de.StatusCode == http.StatusTooManyRequests || de.StatusCode == http.StatusRequestTimeout {
		return false
	}
	// Other 4xx statuses mean the endpoint will never accept us.
	return de.StatusCode >= 400 && de.StatusCode < 500
}

// shortenError extracts the innermost meaningful message from nested network
// errors so that log lines stay concise (e.g. "connection refused").
func shortenError(err error) string {
	if err == nil {
		return "unknown error"
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var oe *net.OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return oe.Err.Error()
	}
	return err.Error()
}
