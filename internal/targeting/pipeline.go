package targeting

import (
	"context"

	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// FrequencyGate is the slice of the frequency-cap store the pipeline needs.
type FrequencyGate interface {
	Allow(ctx context.Context, visitorID string, campaignID string, cfg domain.FrequencyCapConfig) (bool, error)
}

// Stage narrows a candidate campaign list for one visitor. Stages never
// reorder or re-rank; each stage's output is the strict input to the next.
type Stage func(ctx context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign

// Pipeline applies the targeting stages in their fixed order:
// device, page, geo, audience, frequency.
type Pipeline struct {
	stages []Stage
	log    *logger.Logger
}

// New builds the standard pipeline. gate may be nil, in which case the
// frequency stage is omitted (used by tests exercising pure targeting).
func New(log *logger.Logger, gate FrequencyGate) *Pipeline {
	p := &Pipeline{log: log}
	p.stages = []Stage{
		p.deviceStage,
		p.pageStage,
		p.geoStage,
		p.audienceStage,
	}
	if gate != nil {
		p.stages = append(p.stages, p.frequencyStage(gate))
	}
	return p
}

// Filter runs every stage in order and returns the surviving candidates.
func (p *Pipeline) Filter(ctx context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign {
	out := campaigns
	for _, stage := range p.stages {
		if len(out) == 0 {
			return out
		}
		out = stage(ctx, out, visitor)
	}
	return out
}

func (p *Pipeline) deviceStage(_ context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign {
	return keep(campaigns, func(c domain.Campaign) bool {
		rule := c.TargetRules.Devices
		if rule == nil || !rule.Enabled || len(rule.Devices) == 0 {
			return true
		}
		for _, d := range rule.Devices {
			if equalFold(d, visitor.DeviceType) {
				return true
			}
		}
		return false
	})
}

func (p *Pipeline) pageStage(_ context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign {
	return keep(campaigns, func(c domain.Campaign) bool {
		rule := c.TargetRules.Pages
		if rule == nil || !rule.Enabled || len(rule.Patterns) == 0 {
			return true
		}
		for _, pattern := range rule.Patterns {
			if MatchPage(pattern, visitor.PageURL) {
				return true
			}
		}
		return false
	})
}

func (p *Pipeline) geoStage(_ context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign {
	// Without a resolved country geography cannot be evaluated at all, so
	// every geo rule passes.
	if visitor.Country == "" {
		return campaigns
	}
	return keep(campaigns, func(c domain.Campaign) bool {
		rule := c.TargetRules.Geo
		if rule == nil || !rule.Enabled || len(rule.Countries) == 0 {
			return true
		}
		member := false
		for _, country := range rule.Countries {
			if equalFold(country, visitor.Country) {
				member = true
				break
			}
		}
		switch rule.Mode {
		case domain.GeoModeInclude:
			return member
		case domain.GeoModeExclude:
			return !member
		default:
			p.warnRule(c, "geo", "unknown mode")
			return false
		}
	})
}

func (p *Pipeline) audienceStage(_ context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign {
	return keep(campaigns, func(c domain.Campaign) bool {
		rule := c.TargetRules.Audience
		if rule == nil || !rule.Enabled || rule.Root == nil {
			return true
		}
		ok, err := evalNode(rule.Root, visitor)
		if err != nil {
			// Malformed rules fail closed for this campaign only, never
			// for the pipeline.
			p.warnRule(c, "audience", err.Error())
			return false
		}
		return ok
	})
}

func (p *Pipeline) frequencyStage(gate FrequencyGate) Stage {
	return func(ctx context.Context, campaigns []domain.Campaign, visitor domain.VisitorContext) []domain.Campaign {
		return keep(campaigns, func(c domain.Campaign) bool {
			if c.FrequencyCap.Unbounded() {
				return true
			}
			allowed, err := gate.Allow(ctx, visitor.VisitorID, c.ID.String(), c.FrequencyCap)
			if err != nil {
				// Counter store health must not block campaign delivery.
				if p.log != nil {
					p.log.Warn("frequency check failed open",
						zap.String("campaign_id", c.ID.String()), zap.Error(err))
				}
				return true
			}
			return allowed
		})
	}
}

func (p *Pipeline) warnRule(c domain.Campaign, stage, reason string) {
	if p.log == nil {
		return
	}
	p.log.Warn("malformed targeting rule",
		zap.String("campaign_id", c.ID.String()),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
}

func keep(campaigns []domain.Campaign, pred func(domain.Campaign) bool) []domain.Campaign {
	out := make([]domain.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}
