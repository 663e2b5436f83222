package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
)

// CampaignRepository reads campaign configuration from PostgreSQL. The
// schema is owned by the authoring domain; this repository only selects.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, store_id, name, status, template, priority,
	target_rules, max_per_session, max_per_day, cooldown_seconds,
	discount_config, prizes, experiment_id, variant_key, is_control,
	created_at, updated_at`

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign, err := record.toDomain()
	if err != nil {
		return nil, fmt.Errorf("campaign repo: decode %s: %w", id, err)
	}
	return &campaign, nil
}

// ListActiveByStore returns every active campaign owned by the store.
func (r *CampaignRepository) ListActiveByStore(ctx context.Context, storeID uuid.UUID) ([]domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE store_id = $1 AND status = $2
		ORDER BY created_at ASC`

	rows, err := r.db.QueryxContext(ctx, q, storeID, domain.CampaignStatusActive)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list active: %w", err)
	}
	defer rows.Close()

	var results []domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign, err := record.toDomain()
		if err != nil {
			return nil, fmt.Errorf("campaign repo: decode %s: %w", record.ID, err)
		}
		results = append(results, campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

type campaignRecord struct {
	ID              uuid.UUID       `db:"id"`
	StoreID         uuid.UUID       `db:"store_id"`
	Name            string          `db:"name"`
	Status          string          `db:"status"`
	Template        string          `db:"template"`
	Priority        int             `db:"priority"`
	TargetRules     []byte          `db:"target_rules"`
	MaxPerSession   sql.NullInt64   `db:"max_per_session"`
	MaxPerDay       sql.NullInt64   `db:"max_per_day"`
	CooldownSeconds sql.NullInt64   `db:"cooldown_seconds"`
	DiscountConfig  []byte          `db:"discount_config"`
	Prizes          []byte          `db:"prizes"`
	ExperimentID    *uuid.UUID      `db:"experiment_id"`
	VariantKey      sql.NullString  `db:"variant_key"`
	IsControl       bool            `db:"is_control"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r campaignRecord) toDomain() (domain.Campaign, error) {
	campaign := domain.Campaign{
		ID:           r.ID,
		StoreID:      r.StoreID,
		Name:         r.Name,
		Status:       domain.CampaignStatus(r.Status),
		Template:     domain.CampaignTemplate(r.Template),
		Priority:     r.Priority,
		ExperimentID: r.ExperimentID,
		VariantKey:   r.VariantKey.String,
		IsControl:    r.IsControl,
		FrequencyCap: domain.FrequencyCapConfig{
			MaxPerSession:   int(r.MaxPerSession.Int64),
			MaxPerDay:       int(r.MaxPerDay.Int64),
			CooldownSeconds: int(r.CooldownSeconds.Int64),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	if len(r.TargetRules) > 0 {
		var rules targetRulesJSON
		if err := json.Unmarshal(r.TargetRules, &rules); err != nil {
			return domain.Campaign{}, fmt.Errorf("target rules: %w", err)
		}
		campaign.TargetRules = rules.toDomain()
	}

	if len(r.DiscountConfig) > 0 {
		var cfg discountConfigJSON
		if err := json.Unmarshal(r.DiscountConfig, &cfg); err != nil {
			return domain.Campaign{}, fmt.Errorf("discount config: %w", err)
		}
		dc := cfg.toDomain()
		campaign.Discount = &dc
	}

	if len(r.Prizes) > 0 {
		var prizes []prizeJSON
		if err := json.Unmarshal(r.Prizes, &prizes); err != nil {
			return domain.Campaign{}, fmt.Errorf("prizes: %w", err)
		}
		for _, p := range prizes {
			campaign.Prizes = append(campaign.Prizes, p.toDomain())
		}
	}

	return campaign, nil
}
