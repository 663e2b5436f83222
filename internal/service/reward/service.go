package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/discount"
	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/queue"
	"github.com/acme/popup-campaign-engine/internal/repository"
	apperrors "github.com/acme/popup-campaign-engine/pkg/errors"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// TokenConsumer validates and burns single-use interaction tokens.
type TokenConsumer interface {
	ValidateAndConsume(ctx context.Context, token, campaignID, sessionID, clientIP string) error
}

// RateGate limits reward successes per identity and campaign.
type RateGate interface {
	Allow(ctx context.Context, identity, campaignID string) bool
}

// PrizeDrawer picks one weighted outcome server-side.
type PrizeDrawer interface {
	Draw(segments []domain.Prize) (domain.Prize, error)
}

// Issuer mints discount codes idempotently per lead.
type Issuer interface {
	Issue(ctx context.Context, input discount.IssueInput) (*discount.IssueResult, error)
}

// EngagementSink publishes engagement messages for downstream counters.
type EngagementSink interface {
	Publish(ctx context.Context, msg queue.EngagementMessage) error
}

// LeadSink publishes lead-captured messages.
type LeadSink interface {
	Publish(ctx context.Context, msg queue.LeadCapturedMessage) error
}

// Declined result reasons.
const (
	ReasonInvalidToken = "invalid_token"
	ReasonRateLimited  = "rate_limited"
)

// Service handles the shopper's action after a campaign was displayed:
// a wheel spin, a scratch, or a plain lead form submit.
type Service struct {
	campaigns  repository.CampaignRepository
	tokens     TokenConsumer
	limiter    RateGate
	prizes     PrizeDrawer
	issuer     Issuer
	events     repository.EngagementStore
	engagement EngagementSink
	leadsOut   LeadSink
	log        *logger.Logger
}

// NewService builds the reward service.
func NewService(
	campaigns repository.CampaignRepository,
	tokens TokenConsumer,
	limiter RateGate,
	prizes PrizeDrawer,
	issuer Issuer,
	events repository.EngagementStore,
	engagement EngagementSink,
	leadsOut LeadSink,
	log *logger.Logger,
) *Service {
	return &Service{
		campaigns:  campaigns,
		tokens:     tokens,
		limiter:    limiter,
		prizes:     prizes,
		issuer:     issuer,
		events:     events,
		engagement: engagement,
		leadsOut:   leadsOut,
		log:        log,
	}
}

// PlayInput is one spin or scratch attempt.
type PlayInput struct {
	CampaignID uuid.UUID
	Token      string
	Email      string
	Visitor    domain.VisitorContext
}

// PlayResult is the authoritative outcome of one play. Declined results
// are soft: the caller renders a "try again later" state, not an error.
type PlayResult struct {
	Declined   bool
	Reason     string
	PrizeLabel string
	Reward     *discount.RewardView
	LeadID     *uuid.UUID
}

// Play consumes the token, draws a prize server-side and, when the
// prize carries a discount and the shopper left an email, issues a code.
func (s *Service) Play(ctx context.Context, input PlayInput) (*PlayResult, error) {
	campaign, err := s.campaigns.Get(ctx, input.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("reward service: lookup campaign: %w", err)
	}
	if !campaign.IsGamified() {
		return nil, fmt.Errorf("%w: campaign %s is not gamified", apperrors.ErrValidation, campaign.ID)
	}
	if len(campaign.Prizes) == 0 {
		return nil, fmt.Errorf("%w: campaign %s has no prizes configured", apperrors.ErrValidation, campaign.ID)
	}

	if declined := s.guard(ctx, campaign, input.Token, input.Email, input.Visitor); declined != nil {
		return declined, nil
	}

	prize, err := s.prizes.Draw(campaign.Prizes)
	if err != nil {
		return nil, fmt.Errorf("reward service: draw prize: %w", err)
	}

	result := &PlayResult{PrizeLabel: prize.Label}
	s.recordEngagement(ctx, campaign, input.Visitor, repository.EngagementPlay, prize.Label)

	if prize.Discount != nil && input.Email != "" {
		label := prize.Label
		issued, err := s.issuer.Issue(ctx, discount.IssueInput{
			StoreID:      campaign.StoreID,
			CampaignID:   campaign.ID,
			Email:        input.Email,
			Config:       *prize.Discount,
			CartSubtotal: subtotalOf(input.Visitor),
			PrizeLabel:   &label,
		})
		if err != nil {
			return nil, fmt.Errorf("reward service: issue prize discount: %w", err)
		}
		view := discount.ShapeReward(prize.Discount.DeliveryMode, issued)
		result.Reward = &view
		result.LeadID = &issued.Lead.ID
		s.afterIssue(ctx, campaign, input.Visitor, issued, prize.Label)
	}

	return result, nil
}

// LeadInput is one lead form submission.
type LeadInput struct {
	CampaignID uuid.UUID
	Token      string
	Email      string
	Visitor    domain.VisitorContext
}

// LeadResult reports the captured lead and its shaped reward.
type LeadResult struct {
	Declined bool
	Reason   string
	LeadID   uuid.UUID
	Reward   *discount.RewardView
}

// SubmitLead captures the lead and issues the campaign's discount, if
// one is configured. Repeat submissions return the original code.
func (s *Service) SubmitLead(ctx context.Context, input LeadInput) (*LeadResult, error) {
	if input.Email == "" {
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	campaign, err := s.campaigns.Get(ctx, input.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("reward service: lookup campaign: %w", err)
	}

	if declined := s.guard(ctx, campaign, input.Token, input.Email, input.Visitor); declined != nil {
		return &LeadResult{Declined: true, Reason: declined.Reason}, nil
	}

	cfg := domain.DiscountConfig{}
	if campaign.Discount != nil {
		cfg = *campaign.Discount
	}

	issued, err := s.issuer.Issue(ctx, discount.IssueInput{
		StoreID:      campaign.StoreID,
		CampaignID:   campaign.ID,
		Email:        input.Email,
		Config:       cfg,
		CartSubtotal: subtotalOf(input.Visitor),
	})
	if err != nil {
		return nil, fmt.Errorf("reward service: capture lead: %w", err)
	}

	result := &LeadResult{LeadID: issued.Lead.ID}
	if campaign.Discount != nil {
		view := discount.ShapeReward(campaign.Discount.DeliveryMode, issued)
		result.Reward = &view
	}

	s.recordEngagement(ctx, campaign, input.Visitor, repository.EngagementLead, "")
	s.afterIssue(ctx, campaign, input.Visitor, issued, "")

	return result, nil
}

// guard runs the token and rate-limit checks shared by play and lead.
// A non-nil result is the declined outcome to return to the caller.
func (s *Service) guard(ctx context.Context, campaign *domain.Campaign, token, email string, visitor domain.VisitorContext) *PlayResult {
	if err := s.tokens.ValidateAndConsume(ctx, token, campaign.ID.String(), visitor.SessionID, visitor.ClientIP); err != nil {
		if !apperrors.Is(err, apperrors.ErrTokenInvalid) {
			// An unverifiable token cannot honor the single-use
			// guarantee, so the attempt declines. Fail-open is reserved
			// for read-time eligibility checks.
			s.log.WithTrace(ctx).Warn("reward: token check failed, declining",
				zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
		}
		s.recordEngagement(ctx, campaign, visitor, repository.EngagementDeclined, "")
		return &PlayResult{Declined: true, Reason: ReasonInvalidToken}
	}

	identity := email
	if identity == "" {
		identity = visitor.VisitorID
	}
	if !s.limiter.Allow(ctx, identity, campaign.ID.String()) {
		s.recordEngagement(ctx, campaign, visitor, repository.EngagementDeclined, "")
		return &PlayResult{Declined: true, Reason: ReasonRateLimited}
	}

	return nil
}

// afterIssue publishes the lead message and, when a code actually came
// back, the code_issued engagement event.
func (s *Service) afterIssue(ctx context.Context, campaign *domain.Campaign, visitor domain.VisitorContext, issued *discount.IssueResult, prizeLabel string) {
	if issued.Code != "" {
		s.recordEngagement(ctx, campaign, visitor, repository.EngagementCodeIssued, prizeLabel)
	}

	msg := queue.LeadCapturedMessage{
		LeadID:       issued.Lead.ID,
		CampaignID:   campaign.ID,
		StoreID:      campaign.StoreID,
		Email:        issued.Lead.Email,
		DiscountCode: issued.Code,
		PrizeLabel:   prizeLabel,
		CapturedAt:   time.Now().UTC(),
	}
	if err := s.leadsOut.Publish(ctx, msg); err != nil {
		s.log.WithTrace(ctx).Warn("reward: publish lead failed",
			zap.String("lead_id", issued.Lead.ID.String()), zap.Error(err))
	}
}

func subtotalOf(visitor domain.VisitorContext) *float64 {
	if v, ok := visitor.CartSubtotal(); ok {
		return &v
	}
	return nil
}

func (s *Service) recordEngagement(ctx context.Context, campaign *domain.Campaign, visitor domain.VisitorContext, kind repository.EngagementKind, prizeLabel string) {
	now := time.Now().UTC()
	event := repository.EngagementEvent{
		ID:         uuid.New(),
		CampaignID: campaign.ID,
		StoreID:    campaign.StoreID,
		VisitorID:  visitor.VisitorID,
		Kind:       kind,
		VariantKey: campaign.VariantKey,
		PrizeLabel: prizeLabel,
		OccurredAt: now,
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.WithTrace(ctx).Warn("reward: append engagement event failed",
			zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
	}

	msg := queue.EngagementMessage{
		EventID:    event.ID,
		CampaignID: campaign.ID,
		StoreID:    campaign.StoreID,
		VisitorID:  visitor.VisitorID,
		SessionID:  visitor.SessionID,
		Kind:       string(kind),
		VariantKey: campaign.VariantKey,
		PrizeLabel: prizeLabel,
		OccurredAt: now,
	}
	if err := s.engagement.Publish(ctx, msg); err != nil {
		s.log.WithTrace(ctx).Warn("reward: publish engagement failed",
			zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
	}
}
