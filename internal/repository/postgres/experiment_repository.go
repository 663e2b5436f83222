package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
)

// ExperimentRepository reads experiment groupings from PostgreSQL.
type ExperimentRepository struct {
	db *sqlx.DB
}

// NewExperimentRepository constructs a new repository.
func NewExperimentRepository(db *sqlx.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// Get fetches one experiment with its variants.
func (r *ExperimentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Experiment, error) {
	row := r.db.QueryRowxContext(ctx,
		`SELECT id, store_id, name, goal, created_at FROM experiments WHERE id = $1`, id)

	var record experimentRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("experiment repo: get: %w", err)
	}

	exp := record.toDomain()
	variants, err := r.listVariants(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	exp.Variants = variants[id]
	return &exp, nil
}

// ListByStore returns every experiment for the store, variants included.
func (r *ExperimentRepository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]domain.Experiment, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, store_id, name, goal, created_at FROM experiments WHERE store_id = $1 ORDER BY created_at ASC`, storeID)
	if err != nil {
		return nil, fmt.Errorf("experiment repo: list: %w", err)
	}
	defer rows.Close()

	var experiments []domain.Experiment
	var ids []uuid.UUID
	for rows.Next() {
		var record experimentRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("experiment repo: scan: %w", err)
		}
		experiments = append(experiments, record.toDomain())
		ids = append(ids, record.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("experiment repo: rows err: %w", err)
	}
	if len(experiments) == 0 {
		return nil, nil
	}

	variants, err := r.listVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range experiments {
		experiments[i].Variants = variants[experiments[i].ID]
	}
	return experiments, nil
}

func (r *ExperimentRepository) listVariants(ctx context.Context, experimentIDs []uuid.UUID) (map[uuid.UUID][]domain.Variant, error) {
	q, args, err := sqlx.In(`SELECT experiment_id, variant_key, campaign_id, traffic_allocation, is_control
		FROM experiment_variants WHERE experiment_id IN (?) ORDER BY variant_key ASC`, experimentIDs)
	if err != nil {
		return nil, fmt.Errorf("experiment repo: build variant query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("experiment repo: list variants: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.Variant)
	for rows.Next() {
		var record variantRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("experiment repo: scan variant: %w", err)
		}
		out[record.ExperimentID] = append(out[record.ExperimentID], domain.Variant{
			Key:               record.VariantKey,
			CampaignID:        record.CampaignID,
			TrafficAllocation: record.TrafficAllocation,
			IsControl:         record.IsControl,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("experiment repo: variant rows err: %w", err)
	}
	return out, nil
}

type experimentRecord struct {
	ID        uuid.UUID      `db:"id"`
	StoreID   uuid.UUID      `db:"store_id"`
	Name      string         `db:"name"`
	Goal      sql.NullString `db:"goal"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r experimentRecord) toDomain() domain.Experiment {
	return domain.Experiment{
		ID:        r.ID,
		StoreID:   r.StoreID,
		Name:      r.Name,
		Goal:      r.Goal.String,
		CreatedAt: r.CreatedAt,
	}
}

type variantRecord struct {
	ExperimentID      uuid.UUID `db:"experiment_id"`
	VariantKey        string    `db:"variant_key"`
	CampaignID        uuid.UUID `db:"campaign_id"`
	TrafficAllocation int       `db:"traffic_allocation"`
	IsControl         bool      `db:"is_control"`
}
