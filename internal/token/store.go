package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/acme/popup-campaign-engine/internal/config"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
)

// Store issues and consumes single-use play tokens in Redis. A token is
// bound to (campaign, session) at issue time and can be consumed at most
// once; the wheel spin or form submit that presents it second loses.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// consumeScript compares the stored binding and deletes the key in one
// atomic step, so two concurrent plays cannot both consume the token.
var consumeScript = redis.NewScript(`
local bound = redis.call('GET', KEYS[1])
if not bound then
  return 0
end
if bound ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// NewStore constructs a token store.
func NewStore(client *redis.Client, cfg config.TokenConfig) *Store {
	return &Store{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

// Issue mints an opaque token bound to the campaign and session.
func (s *Store) Issue(ctx context.Context, campaignID, sessionID string) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("token: entropy: %w", err)
	}
	token := hex.EncodeToString(raw[:])

	key := s.key(token)
	if err := s.client.Set(ctx, key, binding(campaignID, sessionID), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("token: store: %w", err)
	}
	return token, nil
}

// ValidateAndConsume burns the token. It returns ErrTokenInvalid for
// unknown, expired, rebound, or already-consumed tokens.
func (s *Store) ValidateAndConsume(ctx context.Context, token, campaignID, sessionID, clientIP string) error {
	if token == "" {
		return apperrors.ErrTokenInvalid
	}

	res, err := consumeScript.Run(ctx, s.client, []string{s.key(token)}, binding(campaignID, sessionID)).Int()
	if err != nil {
		return fmt.Errorf("token: consume: %w", err)
	}
	if res != 1 {
		return apperrors.ErrTokenInvalid
	}
	return nil
}

func (s *Store) key(token string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, token)
}

func binding(campaignID, sessionID string) string {
	return campaignID + "|" + sessionID
}
