package fetch

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter rate-limits requests per remote host so concurrent runs that
// target the same site stay polite.
type hostLimiter struct {
	perSec rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHostLimiter(perSec float64) *hostLimiter {
	return &hostLimiter{
		perSec:   rate.Limit(perSec),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is permitted or ctx is done.
func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiterFor(strings.ToLower(host)).Wait(ctx)
}

func (h *hostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.perSec, 1)
		h.limiters[host] = lim
	}
	return lim
}
