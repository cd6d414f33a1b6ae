package fallback

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/roastcraft/enrich-cli/internal/config"
)

// SourceLimiter holds one token bucket per source so a bursty source
// cannot starve inference capacity for the rest.
type SourceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	perSource  map[string]float64
	defaultRPS float64
	burst      int
}

// NewSourceLimiter builds a limiter registry from rate limit config.
func NewSourceLimiter(cfg config.RateLimitConfig) *SourceLimiter {
	rps := cfg.DefaultRPS
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &SourceLimiter{
		limiters:   make(map[string]*rate.Limiter),
		perSource:  cfg.PerSource,
		defaultRPS: rps,
		burst:      burst,
	}
}

// Allow reports whether a call for the given source may proceed now.
// It never blocks: a depleted bucket means the field goes to review
// instead of waiting out the window.
func (s *SourceLimiter) Allow(sourceID string) bool {
	return s.limiterFor(sourceID).Allow()
}

func (s *SourceLimiter) limiterFor(sourceID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lim, ok := s.limiters[sourceID]; ok {
		return lim
	}
	rps := s.defaultRPS
	if override, ok := s.perSource[sourceID]; ok && override > 0 {
		rps = override
	}
	lim := rate.NewLimiter(rate.Limit(rps), s.burst)
	s.limiters[sourceID] = lim
	return lim
}
