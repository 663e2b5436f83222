package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/config"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// Limiter caps reward successes per (identity, campaign) per rolling
// window; one per day by default. Identity is the shopper's email when
// known, otherwise the visitor id.
type Limiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
	log       *logger.Logger
}

// allowScript checks the counter against the limit and increments in the
// same round trip, so concurrent plays cannot both slip under the limit.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// New constructs a limiter.
func New(client *redis.Client, cfg config.RateLimitConfig, log *logger.Logger) *Limiter {
	return &Limiter{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		limit:     cfg.MaxPerWindow,
		window:    cfg.Window,
		log:       log,
	}
}

// Allow consumes one reward slot for the identity. The slot is taken at
// guard time, before the play or issuance outcome is known; a play whose
// issuance fails afterwards does not refund it, the retroactive issuer
// completes the missing code instead. A counter-store error fails open:
// rewards availability does not depend on the limiter's uptime, and
// abuse within an outage window is bounded by token issuance.
func (l *Limiter) Allow(ctx context.Context, identity, campaignID string) bool {
	key := fmt.Sprintf("%s:%s:%s", l.keyPrefix, identity, campaignID)

	res, err := allowScript.Run(ctx, l.client, []string{key}, l.limit, l.window.Milliseconds()).Int()
	if err != nil {
		if l.log != nil {
			l.log.Warn("rate limiter failed open", zap.String("key", key), zap.Error(err))
		}
		return true
	}
	return res == 1
}
