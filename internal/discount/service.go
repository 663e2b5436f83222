package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/commerce"
	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// Service issues store-scoped discount codes exactly once per
// (store, campaign, email). The Lead unique key is the idempotency
// boundary; the external commerce call is at-least-once-attempted but
// exactly-once-recorded.
type Service struct {
	leads  repository.LeadRepository
	client commerce.Client
	log    *logger.Logger
}

// NewService constructs an issuance service.
func NewService(leads repository.LeadRepository, client commerce.Client, log *logger.Logger) *Service {
	return &Service{leads: leads, client: client, log: log}
}

// IssueInput carries one issuance attempt.
type IssueInput struct {
	StoreID    uuid.UUID
	CampaignID uuid.UUID
	Email      string
	Config     domain.DiscountConfig
	// CartSubtotal selects a discount tier when tiers are configured.
	// nil means unknown; the first tier is used then.
	CartSubtotal *float64
	// PrizeLabel records the prize that earned the discount, for
	// gamified campaigns.
	PrizeLabel *string
}

// IssueResult is the outcome of one issuance attempt. Code is empty when
// the external platform failed; the Lead is still persisted so a later
// retry can complete issuance.
type IssueResult struct {
	Lead   *domain.Lead
	Code   string
	CodeID string
}

// Issue walks the issuance state machine for one shopper interaction.
func (s *Service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	key := domain.LeadKey{StoreID: input.StoreID, CampaignID: input.CampaignID, Email: email}

	existing, err := s.leads.GetByKey(ctx, key)
	switch {
	case err == nil:
		return s.completeExisting(ctx, existing, input)
	case errors.Is(err, repository.ErrNotFound):
		// fresh interaction, fall through
	default:
		return nil, fmt.Errorf("discount: lookup lead: %w", err)
	}

	if input.Config.Empty() {
		return s.captureOnly(ctx, key, input)
	}

	created, createErr := s.createDiscount(ctx, input)

	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:         uuid.New(),
		StoreID:    input.StoreID,
		CampaignID: input.CampaignID,
		Email:      email,
		PrizeLabel: input.PrizeLabel,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if createErr == nil {
		lead.DiscountCode = &created.Code
		lead.DiscountID = &created.ID
	}

	if err := s.leads.Create(ctx, lead); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Lost the duplicate-submit race: the winner's row is the
			// record of truth.
			return s.recoverFromRace(ctx, key, created, createErr)
		}
		return nil, fmt.Errorf("discount: create lead: %w", err)
	}

	if createErr != nil {
		// Lead capture must survive a rewards outage. The null-code lead
		// is picked up later for retroactive issuance.
		s.warn(ctx, "discount issuance failed, lead preserved without code",
			zap.String("campaign_id", input.CampaignID.String()), zap.Error(createErr))
		return &IssueResult{Lead: lead}, nil
	}

	return &IssueResult{Lead: lead, Code: created.Code, CodeID: created.ID}, nil
}

// completeExisting handles the AlreadyIssued and retroactive-issuance
// states for a lead that already exists.
func (s *Service) completeExisting(ctx context.Context, lead *domain.Lead, input IssueInput) (*IssueResult, error) {
	if lead.HasCode() {
		// Terminal state: return unchanged, no external call.
		result := &IssueResult{Lead: lead, Code: *lead.DiscountCode}
		if lead.DiscountID != nil {
			result.CodeID = *lead.DiscountID
		}
		return result, nil
	}

	if input.Config.Empty() {
		// Capture-only repeat: there is no code owed.
		return &IssueResult{Lead: lead}, nil
	}

	created, err := s.createDiscount(ctx, input)
	if err != nil {
		s.warn(ctx, "retroactive issuance failed",
			zap.String("lead_id", lead.ID.String()), zap.Error(err))
		return &IssueResult{Lead: lead}, nil
	}

	if err := s.leads.AttachDiscount(ctx, lead.ID, created.Code, created.ID); err != nil {
		return nil, fmt.Errorf("discount: attach code: %w", err)
	}
	lead.DiscountCode = &created.Code
	lead.DiscountID = &created.ID
	return &IssueResult{Lead: lead, Code: created.Code, CodeID: created.ID}, nil
}

// captureOnly persists the lead without touching the commerce platform.
// Campaigns with no discount configured still capture leads; the
// resulting row carries no code and is never owed one.
func (s *Service) captureOnly(ctx context.Context, key domain.LeadKey, input IssueInput) (*IssueResult, error) {
	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:         uuid.New(),
		StoreID:    input.StoreID,
		CampaignID: input.CampaignID,
		Email:      key.Email,
		PrizeLabel: input.PrizeLabel,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.leads.Create(ctx, lead); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			winner, lookupErr := s.leads.GetByKey(ctx, key)
			if lookupErr != nil {
				return nil, fmt.Errorf("discount: conflict recovery lookup: %w", lookupErr)
			}
			result := &IssueResult{Lead: winner}
			if winner.HasCode() {
				result.Code = *winner.DiscountCode
				if winner.DiscountID != nil {
					result.CodeID = *winner.DiscountID
				}
			}
			return result, nil
		}
		return nil, fmt.Errorf("discount: create lead: %w", err)
	}

	return &IssueResult{Lead: lead}, nil
}

// recoverFromRace resolves a unique-key conflict by adopting the winning
// row. When the loser already minted an external code and the winner has
// none, the code is attached rather than discarded.
func (s *Service) recoverFromRace(ctx context.Context, key domain.LeadKey, created commerce.CreatedDiscount, createErr error) (*IssueResult, error) {
	winner, err := s.leads.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("discount: conflict recovery lookup: %w", err)
	}

	if winner.HasCode() {
		result := &IssueResult{Lead: winner, Code: *winner.DiscountCode}
		if winner.DiscountID != nil {
			result.CodeID = *winner.DiscountID
		}
		return result, nil
	}

	if createErr == nil {
		if err := s.leads.AttachDiscount(ctx, winner.ID, created.Code, created.ID); err != nil {
			return nil, fmt.Errorf("discount: conflict recovery attach: %w", err)
		}
		winner.DiscountCode = &created.Code
		winner.DiscountID = &created.ID
		return &IssueResult{Lead: winner, Code: created.Code, CodeID: created.ID}, nil
	}

	return &IssueResult{Lead: winner}, nil
}

func (s *Service) createDiscount(ctx context.Context, input IssueInput) (commerce.CreatedDiscount, error) {
	value := TierValue(input.Config, input.CartSubtotal)

	req := commerce.CreateDiscountRequest{
		StoreID:         input.StoreID,
		CampaignID:      input.CampaignID,
		ValueType:       input.Config.ValueType,
		Value:           value,
		AuthorizedEmail: input.Config.AuthorizedEmail,
	}
	if input.Config.ExpiresAfter > 0 {
		expires := time.Now().UTC().Add(input.Config.ExpiresAfter)
		req.ExpiresAt = &expires
	}

	return s.client.CreateDiscount(ctx, req)
}

// TierValue resolves the discount value for the shopper's cart subtotal.
// The highest tier whose MinSubtotal the subtotal meets wins. An unknown
// subtotal falls back to the first configured tier; product has flagged
// this default but not signed off on changing it.
func TierValue(cfg domain.DiscountConfig, subtotal *float64) float64 {
	if len(cfg.Tiers) == 0 {
		return cfg.Value
	}
	if subtotal == nil {
		return cfg.Tiers[0].Value
	}

	value := cfg.Tiers[0].Value
	best := -1.0
	matched := false
	for _, tier := range cfg.Tiers {
		if *subtotal >= tier.MinSubtotal && tier.MinSubtotal > best {
			best = tier.MinSubtotal
			value = tier.Value
			matched = true
		}
	}
	if !matched {
		return cfg.Tiers[0].Value
	}
	return value
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) warn(ctx context.Context, msg string, fields ...zap.Field) {
	if s.log == nil {
		return
	}
	s.log.WithTrace(ctx).Warn(msg, fields...)
}
