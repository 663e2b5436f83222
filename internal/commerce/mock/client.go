package mock

import (
	"context"
	crand "crypto/rand"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/commerce"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Client fabricates discount codes locally, for development and tests
// that should not reach the commerce platform. It holds no state and is
// safe for concurrent use.
type Client struct{}

// NewClient constructs a mock commerce client.
func NewClient() *Client {
	return &Client{}
}

// CreateDiscount returns a synthetic code in the platform's shape.
func (c *Client) CreateDiscount(ctx context.Context, req commerce.CreateDiscountRequest) (commerce.CreatedDiscount, error) {
	select {
	case <-ctx.Done():
		return commerce.CreatedDiscount{}, ctx.Err()
	default:
	}

	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return commerce.CreatedDiscount{}, fmt.Errorf("mock commerce: read entropy: %w", err)
	}
	code := make([]byte, len(buf))
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	return commerce.CreatedDiscount{
		Code: fmt.Sprintf("SAVE-%s", code),
		ID:   uuid.NewString(),
	}, nil
}
