package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
)

const uniqueViolation = "23505"

// LeadRepository persists shopper interaction records in PostgreSQL.
// The (store_id, campaign_id, email) unique index is the concurrency
// guard for discount issuance.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs a new repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create inserts a new lead. A unique-key violation surfaces as
// ErrConflict so the caller can fall back to the existing row.
func (r *LeadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	q := `INSERT INTO leads (
		id, store_id, campaign_id, email, discount_code, discount_id, prize_label, created_at, updated_at
	) VALUES (
		:id, :store_id, :campaign_id, :email, :discount_code, :discount_id, :prize_label, :created_at, :updated_at
	)`

	params := map[string]any{
		"id":            lead.ID,
		"store_id":      lead.StoreID,
		"campaign_id":   lead.CampaignID,
		"email":         lead.Email,
		"discount_code": lead.DiscountCode,
		"discount_id":   lead.DiscountID,
		"prize_label":   lead.PrizeLabel,
		"created_at":    lead.CreatedAt,
		"updated_at":    lead.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return fmt.Errorf("lead repo: insert: %w", err)
	}

	return nil
}

// GetByKey fetches the lead for one (store, campaign, email) triple.
func (r *LeadRepository) GetByKey(ctx context.Context, key domain.LeadKey) (*domain.Lead, error) {
	q := `SELECT id, store_id, campaign_id, email, discount_code, discount_id, prize_label, created_at, updated_at
		FROM leads WHERE store_id = $1 AND campaign_id = $2 AND email = $3`

	row := r.db.QueryRowxContext(ctx, q, key.StoreID, key.CampaignID, key.Email)
	var record leadRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lead repo: get by key: %w", err)
	}

	lead := record.toDomain()
	return &lead, nil
}

// AttachDiscount records an issued code onto an existing lead. It only
// fills empty slots; an already-coded lead is left untouched so a
// concurrent retroactive issuance cannot clobber it.
func (r *LeadRepository) AttachDiscount(ctx context.Context, leadID uuid.UUID, code, discountID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET discount_code = $1, discount_id = $2, updated_at = NOW()
		 WHERE id = $3 AND discount_code IS NULL`,
		code, discountID, leadID)
	if err != nil {
		return fmt.Errorf("lead repo: attach discount: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lead repo: rows affected: %w", err)
	}
	if n == 0 {
		// Either the lead vanished or a code is already attached; both
		// resolve through the caller's lookup path.
		return repository.ErrConflict
	}
	return nil
}

// ListPendingIssuance returns leads that still lack a code, oldest
// first. Capture-only leads, those on campaigns with no discount
// configured and no prize attached, are excluded so they cannot occupy
// retry batch slots forever.
func (r *LeadRepository) ListPendingIssuance(ctx context.Context, olderThan time.Time, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT l.id, l.store_id, l.campaign_id, l.email, l.discount_code, l.discount_id, l.prize_label, l.created_at, l.updated_at
		 FROM leads l
		 JOIN campaigns c ON c.id = l.campaign_id
		 WHERE l.discount_code IS NULL AND l.created_at < $1
		   AND (c.discount_config IS NOT NULL OR l.prize_label IS NOT NULL)
		 ORDER BY l.created_at ASC LIMIT $2`,
		olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("lead repo: list pending: %w", err)
	}
	defer rows.Close()

	var results []domain.Lead
	for rows.Next() {
		var record leadRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("lead repo: scan: %w", err)
		}
		results = append(results, record.toDomain())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead repo: rows err: %w", err)
	}

	return results, nil
}

type leadRecord struct {
	ID           uuid.UUID      `db:"id"`
	StoreID      uuid.UUID      `db:"store_id"`
	CampaignID   uuid.UUID      `db:"campaign_id"`
	Email        string         `db:"email"`
	DiscountCode sql.NullString `db:"discount_code"`
	DiscountID   sql.NullString `db:"discount_id"`
	PrizeLabel   sql.NullString `db:"prize_label"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r leadRecord) toDomain() domain.Lead {
	lead := domain.Lead{
		ID:         r.ID,
		StoreID:    r.StoreID,
		CampaignID: r.CampaignID,
		Email:      r.Email,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.DiscountCode.Valid {
		code := r.DiscountCode.String
		lead.DiscountCode = &code
	}
	if r.DiscountID.Valid {
		id := r.DiscountID.String
		lead.DiscountID = &id
	}
	if r.PrizeLabel.Valid {
		label := r.PrizeLabel.String
		lead.PrizeLabel = &label
	}
	return lead
}
