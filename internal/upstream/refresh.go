package upstream

import (
	"context"
	"sync"

	"github.com/portalkit/auth-portal/internal/api/metrics"
)

// refreshCoordinator serialises token refreshes for one client. However many
// requests observe a 401 concurrently, at most one refresh call is in flight;
// everyone else queues as a waiter and is resumed with that call's outcome.
//
// Waiters are resumed in enqueue order. On failure they are rejected with the
// leader's error rather than dropped, so no request is left hanging.
type refreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
}

type refreshOutcome struct {
	token string
	err   error
}

func newRefreshCoordinator() *refreshCoordinator {
	return &refreshCoordinator{}
}

// Await returns a fresh access token. The first caller while no refresh is in
// flight becomes the leader and executes call; concurrent callers suspend
// until the leader finishes and share its result.
func (rc *refreshCoordinator) Await(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	rc.mu.Lock()
	if rc.refreshing {
		ch := make(chan refreshOutcome, 1)
		rc.waiters = append(rc.waiters, ch)
		rc.mu.Unlock()

		select {
		case out := <-ch:
			metrics.RefreshWaitersFlushed.Inc()
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	rc.refreshing = true
	rc.mu.Unlock()

	token, err := call(ctx)

	rc.mu.Lock()
	rc.refreshing = false
	waiters := rc.waiters
	rc.waiters = nil
	rc.mu.Unlock()

	// Channels are buffered: delivery never blocks on a waiter whose context
	// already expired.
	for _, ch := range waiters {
		ch <- refreshOutcome{token: token, err: err}
	}
	return token, err
}
