package domain

import (
	"time"

	"github.com/google/uuid"
)

// Experiment groups sibling campaigns into an A/B test sharing a goal.
type Experiment struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	Name      string
	Goal      string
	Variants  []Variant
	CreatedAt time.Time
}

// Variant allocates a share of experiment traffic to one campaign.
type Variant struct {
	Key               string
	CampaignID        uuid.UUID
	TrafficAllocation int // percentage; the resolver normalizes sums != 100
	IsControl         bool
}
