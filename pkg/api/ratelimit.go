package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter keeps one token bucket per user in a bounded map, evicting
// the least recently used user when full.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	order    []string
	perMin   int
	capacity int
}

func newUserLimiter(perMinute, capacity int) *userLimiter {
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
		capacity: capacity,
	}
}

func (l *userLimiter) allow(userID string) bool {
	if l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[userID]
	if ok {
		for i, k := range l.order {
			if k == userID {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
		l.order = append(l.order, userID)
		return lim.Allow()
	}

	if len(l.limiters) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.limiters, oldest)
	}

	lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
	l.limiters[userID] = lim
	l.order = append(l.order, userID)
	return lim.Allow()
}
