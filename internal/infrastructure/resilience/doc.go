/*
Package resilience guards calls to flaky upstreams with a circuit breaker.

The playground has one such upstream today: the CDN the asset proxy mirrors
p5, React and Babel from. When it keeps failing the breaker opens, fetches
fail fast with ErrCircuitOpen, and the proxy falls back to whatever it has
cached. After Settings.Timeout a limited number of trial requests are let
through (half-open); enough successes close the breaker again, one failure
reopens it.

	closed --ReadyToTrip--> open --Timeout--> half-open --MaxRequests ok--> closed
	                                              \--failure--> open

IsSuccessful decides what counts as a failure. The asset proxy treats 4xx
answers as successes so a mistyped asset name cannot take the CDN offline:

	breaker := resilience.New("assets-upstream", resilience.Settings{
		Timeout:      30 * time.Second,
		ReadyToTrip:  func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 5 },
		IsSuccessful: func(err error) bool { return err == nil || isClientError(err) },
	})
	asset, err := resilience.Call(breaker, func() (*Asset, error) {
		return fetch(ctx, name)
	})
*/
package resilience
