package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedUsernames caps limiter memory when usernames are sprayed.
const maxTrackedUsernames = 10_000

// loginLimiter keeps one token bucket per username.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *loginLimiter) allow(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[username]
	if !ok {
		if len(l.limiters) >= maxTrackedUsernames {
			clear(l.limiters)
		}
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[username] = limiter
	}
	return limiter.Allow()
}
