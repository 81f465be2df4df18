package infer

import (
	"context"
	"sync"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// RateLimiter is a token-bucket limiter gating remote dispatch. No
// ecosystem token-bucket package appears anywhere in the retrieval corpus,
// so this one narrow concern is built directly on time.Time + a mutex
// rather than pulling in a dependency with no grounding (see DESIGN.md).
type RateLimiter struct {
	mu           sync.Mutex
	tokens       float64
	max          float64
	refillPerSec float64
	lastRefill   time.Time
}

// NewRateLimiter creates a limiter allowing up to rpm requests per minute,
// starting with a full bucket. rpm <= 0 disables the limit (Allow always
// returns true).
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		return &RateLimiter{max: -1}
	}
	max := float64(rpm)
	return &RateLimiter{
		tokens:       max,
		max:          max,
		refillPerSec: max / 60.0,
		lastRefill:   time.Now(),
	}
}

// Allow consumes one token if available. Disabled limiters (max < 0)
// always allow.
func (r *RateLimiter) Allow() bool {
	if r.max < 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now
	r.tokens += elapsed * r.refillPerSec
	if r.tokens > r.max {
		r.tokens = r.max
	}

	if r.tokens < 1 {
		return false
	}
	r.tokens--
	return true
}

// CostTracker records per-call token spend against a persistent monthly
// aggregate (internal/metadata's cloud_usage table) and blocks further
// remote calls once the configured monthly cost limit is reached.
type CostTracker struct {
	store            metadata.Store
	monthlyLimitUSD  float64
	microsPerDollar  int64
}

// NewCostTracker creates a tracker enforcing monthlyLimitUSD (<=0 disables
// the limit).
func NewCostTracker(store metadata.Store, monthlyLimitUSD float64) *CostTracker {
	return &CostTracker{
		store:           store,
		monthlyLimitUSD: monthlyLimitUSD,
		microsPerDollar: 1_000_000,
	}
}

// Allow reports whether the current month's spend is still under the
// configured limit. A disabled limit, or a lookup failure, allows the
// call through (fail open: a transient metadata error should not itself
// block inference).
func (c *CostTracker) Allow(ctx context.Context) bool {
	if c.monthlyLimitUSD <= 0 {
		return true
	}
	usage, err := c.store.GetCloudUsage(ctx, currentMonth())
	if err != nil {
		return true
	}
	spentUSD := float64(usage.CostEstimateMicros) / float64(c.microsPerDollar)
	return spentUSD < c.monthlyLimitUSD
}

// Record adds one completed remote call's token count and cost estimate
// (in USD) to the current month's running total.
func (c *CostTracker) Record(ctx context.Context, tokens int64, costUSD float64) error {
	costMicros := int64(costUSD * float64(c.microsPerDollar))
	_, err := c.store.RecordCloudUsage(ctx, currentMonth(), 1, tokens, costMicros)
	return err
}

func currentMonth() string {
	return time.Now().Format("2006-01")
}
