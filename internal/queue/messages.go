package queue

import (
	"time"

	"github.com/google/uuid"
)

// EngagementMessage records one shopper interaction with a campaign.
// The stats worker folds these into per-campaign counters.
type EngagementMessage struct {
	EventID    uuid.UUID `json:"event_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	StoreID    uuid.UUID `json:"store_id"`
	VisitorID  string    `json:"visitor_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Kind       string    `json:"kind"`
	VariantKey string    `json:"variant_key,omitempty"`
	PrizeLabel string    `json:"prize_label,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LeadCapturedMessage is emitted once per captured lead, for downstream
// consumers such as ESP sync and store dashboards.
type LeadCapturedMessage struct {
	LeadID       uuid.UUID `json:"lead_id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	StoreID      uuid.UUID `json:"store_id"`
	Email        string    `json:"email"`
	DiscountCode string    `json:"discount_code,omitempty"`
	PrizeLabel   string    `json:"prize_label,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}
