package commerce

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

// CreateDiscountRequest describes the discount code to create on the
// commerce platform, scoped to one store.
type CreateDiscountRequest struct {
	StoreID         uuid.UUID
	CampaignID      uuid.UUID
	ValueType       domain.DiscountValueType
	Value           float64
	AuthorizedEmail string
	ExpiresAt       *time.Time
}

// CreatedDiscount references the external discount object.
type CreatedDiscount struct {
	Code string
	ID   string
}

// Client abstracts the commerce-platform discount API.
type Client interface {
	CreateDiscount(ctx context.Context, req CreateDiscountRequest) (CreatedDiscount, error)
}
