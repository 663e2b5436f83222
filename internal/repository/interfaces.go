package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository reads campaign configuration. The engine never
// writes campaigns; authoring owns that schema.
type CampaignRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]domain.Campaign, error)
}

// ExperimentRepository reads experiment groupings for a store.
type ExperimentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]domain.Experiment, error)
}

// LeadRepository persists shopper interaction records. Create must
// surface ErrConflict on the (store_id, campaign_id, email) unique key so
// callers can fall back to the lookup path.
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByKey(ctx context.Context, key domain.LeadKey) (*domain.Lead, error)
	AttachDiscount(ctx context.Context, leadID uuid.UUID, code, discountID string) error
	ListPendingIssuance(ctx context.Context, olderThan time.Time, limit int) ([]domain.Lead, error)
}

// CampaignStatisticsRepository keeps aggregate engagement counters.
type CampaignStatisticsRepository interface {
	Ensure(ctx context.Context, campaignID uuid.UUID) error
	Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error)
	ApplyDelta(ctx context.Context, campaignID uuid.UUID, delta StatsDelta) error
}

// EngagementStore appends the raw engagement event log.
type EngagementStore interface {
	Append(ctx context.Context, event EngagementEvent) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]EngagementEvent, []byte, error)
}

// EngagementKind enumerates logged shopper interactions.
type EngagementKind string

const (
	EngagementDisplay    EngagementKind = "display"
	EngagementPlay       EngagementKind = "play"
	EngagementLead       EngagementKind = "lead"
	EngagementCodeIssued EngagementKind = "code_issued"
	EngagementDeclined   EngagementKind = "declined"
)

// EngagementEvent is one row of the engagement log.
type EngagementEvent struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	StoreID    uuid.UUID
	VisitorID  string
	Kind       EngagementKind
	VariantKey string
	PrizeLabel string
	OccurredAt time.Time
}

// StatsDelta captures atomic counter increments.
type StatsDelta struct {
	ImpressionsDelta int64
	PlaysDelta       int64
	LeadsDelta       int64
	CodesIssuedDelta int64
	DeclinesDelta    int64
}
