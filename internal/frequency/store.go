package frequency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/acme/popup-campaign-engine/internal/config"
	"github.com/acme/popup-campaign-engine/internal/domain"
)

// Store keeps TTL-based display counters per (visitor, campaign) in Redis.
// It maintains three independent sub-keys per pair: a session counter, a
// rolling-day counter, and a last-shown timestamp for cooldown checks.
type Store struct {
	client     *redis.Client
	keyPrefix  string
	sessionTTL time.Duration
	dayTTL     time.Duration
	now        func() time.Time
}

// recordScript bumps both counters and stamps the last display in one
// round trip, so two tabs racing for the same visitor cannot lose updates.
var recordScript = redis.NewScript(`
redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
redis.call('SET', KEYS[3], ARGV[3], 'PX', ARGV[2])
return 1
`)

// NewStore constructs a frequency-cap store.
func NewStore(client *redis.Client, cfg config.FrequencyConfig) *Store {
	return &Store{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		sessionTTL: cfg.SessionTTL,
		dayTTL:     cfg.DayTTL,
		now:        time.Now,
	}
}

// Allow reports whether the campaign may be shown to the visitor given its
// cap configuration. The three sub-keys are read in a single MGET and the
// limits are evaluated locally.
func (s *Store) Allow(ctx context.Context, visitorID, campaignID string, cfg domain.FrequencyCapConfig) (bool, error) {
	if cfg.Unbounded() {
		return true, nil
	}

	vals, err := s.client.MGet(ctx,
		s.key(visitorID, campaignID, "session"),
		s.key(visitorID, campaignID, "day"),
		s.key(visitorID, campaignID, "last"),
	).Result()
	if err != nil {
		return false, fmt.Errorf("frequency: read counters: %w", err)
	}

	state := CounterState{
		SessionCount: parseCount(vals[0]),
		DayCount:     parseCount(vals[1]),
		LastShownUms: parseCount(vals[2]),
	}
	return Decide(state, cfg, s.now().UTC()), nil
}

// RecordDisplay accounts one confirmed display. Callers invoke it only
// after the render is confirmed, and strictly after Allow.
func (s *Store) RecordDisplay(ctx context.Context, visitorID, campaignID string, cfg domain.FrequencyCapConfig) error {
	if cfg.Unbounded() {
		return nil
	}

	keys := []string{
		s.key(visitorID, campaignID, "session"),
		s.key(visitorID, campaignID, "day"),
		s.key(visitorID, campaignID, "last"),
	}
	err := recordScript.Run(ctx, s.client, keys,
		s.sessionTTL.Milliseconds(),
		s.dayTTL.Milliseconds(),
		s.now().UTC().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("frequency: record display: %w", err)
	}
	return nil
}

func (s *Store) key(visitorID, campaignID, dimension string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.keyPrefix, visitorID, campaignID, dimension)
}

// CounterState is the raw counter snapshot for one (visitor, campaign).
type CounterState struct {
	SessionCount int64
	DayCount     int64
	LastShownUms int64 // unix milliseconds, 0 when never shown
}

// Decide evaluates a cap configuration against a counter snapshot. Zero
// cap fields are unbounded for that dimension.
func Decide(state CounterState, cfg domain.FrequencyCapConfig, now time.Time) bool {
	if cfg.MaxPerSession > 0 && state.SessionCount >= int64(cfg.MaxPerSession) {
		return false
	}
	if cfg.MaxPerDay > 0 && state.DayCount >= int64(cfg.MaxPerDay) {
		return false
	}
	if cfg.CooldownSeconds > 0 && state.LastShownUms > 0 {
		elapsed := now.Sub(time.UnixMilli(state.LastShownUms))
		if elapsed < time.Duration(cfg.CooldownSeconds)*time.Second {
			return false
		}
	}
	return true
}

func parseCount(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
