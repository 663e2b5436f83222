package discount

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/repository"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// Reissuer completes issuance for leads that were captured while the
// commerce platform was failing. Each pass re-runs the normal Issue path,
// which lands in the retroactive-issuance branch for null-code leads.
type Reissuer struct {
	leads     repository.LeadRepository
	campaigns repository.CampaignRepository
	svc       *Service
	log       *logger.Logger
}

// NewReissuer constructs a Reissuer.
func NewReissuer(leads repository.LeadRepository, campaigns repository.CampaignRepository, svc *Service, log *logger.Logger) *Reissuer {
	return &Reissuer{leads: leads, campaigns: campaigns, svc: svc, log: log}
}

// RetryPending attempts issuance for up to limit null-code leads older
// than the cutoff. It returns how many codes were issued; individual
// failures are logged and left for the next pass.
func (r *Reissuer) RetryPending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	pending, err := r.leads.ListPendingIssuance(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("reissuer: list pending: %w", err)
	}

	issued := 0
	for _, lead := range pending {
		campaign, err := r.campaigns.Get(ctx, lead.CampaignID)
		if err != nil {
			r.log.Warn("reissuer: campaign lookup failed",
				zap.String("lead_id", lead.ID.String()),
				zap.String("campaign_id", lead.CampaignID.String()),
				zap.Error(err))
			continue
		}

		cfg, ok := configForLead(campaign, lead)
		if !ok {
			// Nothing to issue: the campaign carries no discount, or the
			// won prize was a no-discount outcome.
			continue
		}

		result, err := r.svc.Issue(ctx, IssueInput{
			StoreID:    lead.StoreID,
			CampaignID: lead.CampaignID,
			Email:      lead.Email,
			Config:     cfg,
			PrizeLabel: lead.PrizeLabel,
		})
		if err != nil {
			r.log.Warn("reissuer: issue failed", zap.String("lead_id", lead.ID.String()), zap.Error(err))
			continue
		}
		if result.Code != "" {
			issued++
		}
	}
	return issued, nil
}

// configForLead picks the discount configuration the lead is owed: the
// prize-specific config when the lead won a prize that carries one,
// otherwise the campaign-level config.
func configForLead(campaign *domain.Campaign, lead domain.Lead) (domain.DiscountConfig, bool) {
	if lead.PrizeLabel != nil {
		for _, p := range campaign.Prizes {
			if p.Label == *lead.PrizeLabel {
				if p.Discount == nil {
					return domain.DiscountConfig{}, false
				}
				return *p.Discount, true
			}
		}
	}
	if campaign.Discount == nil {
		return domain.DiscountConfig{}, false
	}
	return *campaign.Discount, true
}
