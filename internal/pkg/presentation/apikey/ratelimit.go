package apikey

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/munbon/telemetry-core/pkg/types"
)

// tierBucket holds how many requests a tier gets per 15-minute window
// (spec §4.9). Requests-per-second is derived from the window; burst is
// the full window quota so a key can spend its whole allowance at once.
var tierBucket = map[types.Tier]int{
	types.TierFree:       100,
	types.TierBasic:      1000,
	types.TierPremium:    10000,
	types.TierEnterprise: 0, // unbounded
	types.TierInternal:   0, // unbounded
}

const rateWindow = 15 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet tracks one token bucket per API-key id, cleaned up
// periodically so keys that stop being used don't leak memory.
type limiterSet struct {
	mu sync.Mutex
	m  map[string]*entry
}

func newLimiterSet() *limiterSet {
	s := &limiterSet{m: make(map[string]*entry)}
	go s.cleanupLoop()
	return s
}

func (s *limiterSet) forKey(id string, tier types.Tier) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[id]; ok {
		e.lastSeen = time.Now()
		return e.limiter
	}

	quota := tierBucket[tier]
	var limiter *rate.Limiter
	if quota <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		limiter = rate.NewLimiter(rate.Limit(float64(quota)/rateWindow.Seconds()), quota)
	}
	s.m[id] = &entry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (s *limiterSet) cleanupLoop() {
	for {
		time.Sleep(rateWindow)
		s.mu.Lock()
		for id, e := range s.m {
			if time.Since(e.lastSeen) > 2*rateWindow {
				delete(s.m, id)
			}
		}
		s.mu.Unlock()
	}
}

// remainingHeader reports the X-RateLimit-Remaining value per spec
// property P8, rounding down the limiter's current token count.
func remainingHeader(limiter *rate.Limiter) string {
	tokens := limiter.Tokens()
	if tokens < 0 {
		tokens = 0
	}
	return strconv.Itoa(int(tokens))
}

// limitHeader reports the tier's window quota for X-RateLimit-Limit.
// Unbounded tiers (enterprise, internal) report 0, read as "no enforced
// ceiling" rather than a literal zero-request allowance.
func limitHeader(tier types.Tier) string {
	return strconv.Itoa(tierBucket[tier])
}

// resetHeader reports the unix time, in seconds, at which the bucket
// refills to its full burst again, for X-RateLimit-Reset. Unbounded
// limiters never deplete, so they report "now".
func resetHeader(limiter *rate.Limiter) string {
	now := time.Now()
	if limiter.Limit() == rate.Inf {
		return strconv.FormatInt(now.Unix(), 10)
	}

	deficit := float64(limiter.Burst()) - limiter.Tokens()
	if deficit < 0 {
		deficit = 0
	}
	wait := time.Duration(deficit / float64(limiter.Limit()) * float64(time.Second))
	return strconv.FormatInt(now.Add(wait).Unix(), 10)
}
