package accounts

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig tunes the per-email login limiter.
type ThrottleConfig struct {
	// Attempts per minute allowed for a single email. Zero disables
	// throttling.
	AttemptsPerMinute int
	Burst             int
}

// loginThrottle rate-limits login attempts per email to absorb
// brute-force bursts. Limiters for stale emails are dropped on a sweep
// so the map does not grow unbounded.
type loginThrottle struct {
	mu        sync.Mutex
	cfg       ThrottleConfig
	limiters  map[string]*emailLimiter
	lastSweep time.Time
}

type emailLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const throttleSweepInterval = 10 * time.Minute

func newLoginThrottle(cfg ThrottleConfig) *loginThrottle {
	if cfg.Burst == 0 {
		cfg.Burst = cfg.AttemptsPerMinute
	}
	return &loginThrottle{
		cfg:       cfg,
		limiters:  make(map[string]*emailLimiter),
		lastSweep: time.Now(),
	}
}

func (t *loginThrottle) allow(email string) bool {
	if t.cfg.AttemptsPerMinute <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.lastSweep) > throttleSweepInterval {
		for k, v := range t.limiters {
			if now.Sub(v.lastSeen) > throttleSweepInterval {
				delete(t.limiters, k)
			}
		}
		t.lastSweep = now
	}

	l, ok := t.limiters[email]
	if !ok {
		l = &emailLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(t.cfg.AttemptsPerMinute)/60.0), t.cfg.Burst),
		}
		t.limiters[email] = l
	}
	l.lastSeen = now

	return l.limiter.Allow()
}

// reset clears the limiter after a successful login.
func (t *loginThrottle) reset(email string) {
	if t.cfg.AttemptsPerMinute <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, email)
}
