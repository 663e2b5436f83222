package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/queue"
	"github.com/acme/popup-campaign-engine/internal/repository"
	"github.com/acme/popup-campaign-engine/internal/selector"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// DisplayRecorder consumes one unit of frequency budget once a display
// is confirmed.
type DisplayRecorder interface {
	RecordDisplay(ctx context.Context, visitorID, campaignID string, cfg domain.FrequencyCapConfig) error
}

// TokenIssuer mints single-use interaction tokens bound to a session.
type TokenIssuer interface {
	Issue(ctx context.Context, campaignID, sessionID string) (string, error)
}

// EngagementSink publishes engagement messages for downstream counters.
type EngagementSink interface {
	Publish(ctx context.Context, msg queue.EngagementMessage) error
}

// Service resolves which campaign, if any, a visitor may be shown.
type Service struct {
	campaigns   repository.CampaignRepository
	experiments repository.ExperimentRepository
	selector    *selector.Selector
	recorder    DisplayRecorder
	tokens      TokenIssuer
	events      repository.EngagementStore
	engagement  EngagementSink
	log         *logger.Logger
}

// NewService builds the delivery service.
func NewService(
	campaigns repository.CampaignRepository,
	experiments repository.ExperimentRepository,
	sel *selector.Selector,
	recorder DisplayRecorder,
	tokens TokenIssuer,
	events repository.EngagementStore,
	engagement EngagementSink,
	log *logger.Logger,
) *Service {
	return &Service{
		campaigns:   campaigns,
		experiments: experiments,
		selector:    sel,
		recorder:    recorder,
		tokens:      tokens,
		events:      events,
		engagement:  engagement,
		log:         log,
	}
}

// ResolveInput is one storefront delivery request.
type ResolveInput struct {
	StoreID uuid.UUID
	Visitor domain.VisitorContext
}

// ResolveResult carries the winning campaign, or nothing. Token guards
// the follow-up play or lead submission.
type ResolveResult struct {
	Campaign *domain.Campaign
	Token    string
}

// Resolve picks the single campaign the visitor may see and records the
// display. An empty result is a normal outcome, not an error.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	campaigns, err := s.campaigns.ListActiveByStore(ctx, input.StoreID)
	if err != nil {
		return nil, fmt.Errorf("delivery service: list campaigns: %w", err)
	}
	if len(campaigns) == 0 {
		return &ResolveResult{}, nil
	}

	experiments, err := s.loadExperiments(ctx, input.StoreID, campaigns)
	if err != nil {
		return nil, fmt.Errorf("delivery service: list experiments: %w", err)
	}

	selected := s.selector.Select(ctx, campaigns, experiments, input.Visitor)
	if selected == nil {
		return &ResolveResult{}, nil
	}

	// Budget is consumed only once the display decision is final.
	if !selected.FrequencyCap.Unbounded() {
		if err := s.recorder.RecordDisplay(ctx, input.Visitor.VisitorID, selected.ID.String(), selected.FrequencyCap); err != nil {
			s.log.WithTrace(ctx).Warn("delivery: record display failed",
				zap.String("campaign_id", selected.ID.String()), zap.Error(err))
		}
	}

	s.recordEngagement(ctx, selected, input.Visitor, repository.EngagementDisplay, "")

	tok, err := s.tokens.Issue(ctx, selected.ID.String(), input.Visitor.SessionID)
	if err != nil {
		return nil, fmt.Errorf("delivery service: issue token: %w", err)
	}

	return &ResolveResult{Campaign: selected, Token: tok}, nil
}

func (s *Service) loadExperiments(ctx context.Context, storeID uuid.UUID, campaigns []domain.Campaign) (map[uuid.UUID]domain.Experiment, error) {
	referenced := false
	for i := range campaigns {
		if campaigns[i].ExperimentID != nil {
			referenced = true
			break
		}
	}
	if !referenced {
		return nil, nil
	}

	list, err := s.experiments.ListByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Experiment, len(list))
	for _, exp := range list {
		byID[exp.ID] = exp
	}
	return byID, nil
}

// recordEngagement appends the event log row and publishes the counter
// message. Both are best effort; delivery never fails on accounting.
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
		s.log.WithTrace(ctx).Warn("delivery: append engagement event failed",
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
		s.log.WithTrace(ctx).Warn("delivery: publish engagement failed",
			zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
	}
}
