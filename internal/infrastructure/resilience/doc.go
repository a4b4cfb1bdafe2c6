/*
Package resilience provides a circuit breaker for outbound calls.

# Usage

	breaker := resilience.New("upstream", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.ConsecutiveFailures(5),
	})

	body, err := resilience.Do(breaker, func() ([]byte, error) {
		return fetch(ctx)
	})

Callers that need to judge the outcome themselves (an HTTP response with a
5xx status is not a Go error) take a ticket instead:

	done, err := breaker.Allow()
	if err != nil {
		return err // ErrCircuitOpen or ErrTooManyRequests
	}
	resp, err := send(req)
	done(err == nil && resp.StatusCode < 500)

# States

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                                |
	                                            [failure]
	                                                v
	                                               Open

Every transition starts a new generation with fresh counts. Outcomes reported
for a request admitted in an earlier generation are dropped.
*/
package resilience
