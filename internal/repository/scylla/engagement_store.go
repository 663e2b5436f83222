package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/repository"
)

// EngagementStore persists the raw engagement event log in Scylla.
// Events are partitioned by campaign and day bucket so a hot campaign
// never grows an unbounded partition.
type EngagementStore struct {
	session *gocql.Session
}

// NewEngagementStore creates a new engagement store.
func NewEngagementStore(session *gocql.Session) *EngagementStore {
	return &EngagementStore{session: session}
}

// Append inserts one engagement event.
func (s *EngagementStore) Append(ctx context.Context, event repository.EngagementEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	bucket := bucketDate(event.OccurredAt)

	if err := s.session.Query(`INSERT INTO events_by_campaign (campaign_id, bucket, occurred_at, event_id, store_id, visitor_id, kind, variant_key, prize_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.CampaignID.String(), bucket, event.OccurredAt, event.ID.String(),
		event.StoreID.String(), event.VisitorID, string(event.Kind), event.VariantKey, event.PrizeLabel,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("engagement store: insert events_by_campaign: %w", err)
	}

	return nil
}

// ListByCampaign lists events for a campaign newest-first with pagination.
func (s *EngagementStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]repository.EngagementEvent, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT bucket, occurred_at, event_id, store_id, visitor_id, kind, variant_key, prize_label
		FROM events_by_campaign WHERE campaign_id = ? AND bucket = ?`,
		campaignID.String(), bucketDate(time.Now().UTC())).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	events := make([]repository.EngagementEvent, 0, limit)

	var (
		bucket     time.Time
		occurredAt time.Time
		eventIDStr string
		storeIDStr string
		visitorID  string
		kind       string
		variantKey string
		prizeLabel string
	)

	for iter.Scan(&bucket, &occurredAt, &eventIDStr, &storeIDStr, &visitorID, &kind, &variantKey, &prizeLabel) {
		eventID, err := uuid.Parse(eventIDStr)
		if err != nil {
			continue
		}
		storeID, err := uuid.Parse(storeIDStr)
		if err != nil {
			continue
		}

		events = append(events, repository.EngagementEvent{
			ID:         eventID,
			CampaignID: campaignID,
			StoreID:    storeID,
			VisitorID:  visitorID,
			Kind:       repository.EngagementKind(kind),
			VariantKey: variantKey,
			PrizeLabel: prizeLabel,
			OccurredAt: occurredAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("engagement store: iter close: %w", err)
	}

	nextState := iter.PageState()

	return events, nextState, nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
