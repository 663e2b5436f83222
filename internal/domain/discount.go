package domain

import (
	"time"

	"github.com/google/uuid"
)

// DiscountValueType enumerates the kinds of discount a campaign can offer.
type DiscountValueType string

const (
	DiscountPercentage   DiscountValueType = "percentage"
	DiscountFixedAmount  DiscountValueType = "fixed_amount"
	DiscountFreeShipping DiscountValueType = "free_shipping"
)

// DeliveryMode governs how an issued code is surfaced to the shopper. It
// never affects what is stored.
type DeliveryMode string

const (
	// DeliveryShowCode reveals the code in the popup, with copy/paste
	// fallback when auto-apply is unavailable.
	DeliveryShowCode DeliveryMode = "show_code_fallback"
	// DeliveryAutoApplyOnly withholds the code string and signals the
	// client to attempt silent application instead.
	DeliveryAutoApplyOnly DeliveryMode = "auto_apply_only"
	// DeliveryAuthorizedOnly reveals the code only to the single
	// authorized email configured on the campaign.
	DeliveryAuthorizedOnly DeliveryMode = "show_in_popup_authorized_only"
)

// DiscountTier maps a minimum cart subtotal to a discount value.
type DiscountTier struct {
	MinSubtotal float64
	Value       float64
}

// DiscountConfig describes the discount a campaign issues on conversion.
type DiscountConfig struct {
	ValueType       DiscountValueType
	Value           float64
	DeliveryMode    DeliveryMode
	Tiers           []DiscountTier
	AuthorizedEmail string
	ExpiresAfter    time.Duration
}

// Empty reports whether no discount is configured. Leads captured
// against an empty config are capture-only; they never owe a code.
func (c DiscountConfig) Empty() bool {
	return c.ValueType == ""
}

// Prize is one weighted outcome of a gamified campaign (a wheel segment
// or scratch prize). Probabilities are relative weights; they need not
// sum to one.
type Prize struct {
	Label       string
	Probability float64
	Discount    *DiscountConfig
}

// Lead is the durable record of one shopper's interaction with one
// campaign, unique on (store, campaign, email). It anchors discount
// issuance idempotency.
type Lead struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	CampaignID   uuid.UUID
	Email        string
	DiscountCode *string
	DiscountID   *string
	PrizeLabel   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCode reports whether a discount code is attached to the lead.
func (l *Lead) HasCode() bool {
	return l.DiscountCode != nil && *l.DiscountCode != ""
}

// CampaignStats aggregates per-campaign engagement counters.
type CampaignStats struct {
	Impressions int64 `db:"impressions"`
	Plays       int64 `db:"plays"`
	Leads       int64 `db:"leads"`
	CodesIssued int64 `db:"codes_issued"`
	Declines    int64 `db:"declines"`
}

// LeadKey identifies the idempotency boundary for issuance.
type LeadKey struct {
	StoreID    uuid.UUID
	CampaignID uuid.UUID
	Email      string
}
