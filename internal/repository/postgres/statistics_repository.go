package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
)

// CampaignStatisticsRepository keeps per-campaign engagement counters.
type CampaignStatisticsRepository struct {
	db *sqlx.DB
}

// NewCampaignStatisticsRepository builds the repository.
func NewCampaignStatisticsRepository(db *sqlx.DB) *CampaignStatisticsRepository {
	return &CampaignStatisticsRepository{db: db}
}

// Ensure ensures a counter row exists for the campaign.
func (r *CampaignStatisticsRepository) Ensure(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO campaign_statistics (campaign_id)
		VALUES ($1) ON CONFLICT (campaign_id) DO NOTHING`, campaignID)
	if err != nil {
		return fmt.Errorf("campaign stats: ensure: %w", err)
	}
	return nil
}

// Get retrieves statistics.
func (r *CampaignStatisticsRepository) Get(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT impressions, plays, leads, codes_issued, declines
		FROM campaign_statistics WHERE campaign_id = $1`, campaignID)

	var stats domain.CampaignStats
	if err := row.StructScan(&stats); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign stats: get: %w", err)
	}
	return &stats, nil
}

// ApplyDelta applies counter deltas atomically, creating the counter row
// on the campaign's first recorded event.
func (r *CampaignStatisticsRepository) ApplyDelta(ctx context.Context, campaignID uuid.UUID, delta repository.StatsDelta) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO campaign_statistics (campaign_id)
			VALUES ($1) ON CONFLICT (campaign_id) DO NOTHING`, campaignID); err != nil {
			return fmt.Errorf("campaign stats: ensure in tx: %w", err)
		}

		_, err := tx.ExecContext(ctx, `UPDATE campaign_statistics SET
			impressions = impressions + $2,
			plays = plays + $3,
			leads = leads + $4,
			codes_issued = codes_issued + $5,
			declines = declines + $6,
			updated_at = NOW()
		WHERE campaign_id = $1`,
			campaignID,
			delta.ImpressionsDelta,
			delta.PlaysDelta,
			delta.LeadsDelta,
			delta.CodesIssuedDelta,
			delta.DeclinesDelta,
		)
		if err != nil {
			return fmt.Errorf("campaign stats: apply delta: %w", err)
		}
		return nil
	})
}
