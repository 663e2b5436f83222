package selector

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/experiment"
	"github.com/acme/popup-campaign-engine/internal/targeting"
	"github.com/acme/popup-campaign-engine/pkg/logger"
)

// Selector picks the single campaign a visitor may be shown, or none.
type Selector struct {
	pipeline *targeting.Pipeline
	resolver *experiment.Resolver
	log      *logger.Logger
}

// New constructs a Selector.
func New(pipeline *targeting.Pipeline, resolver *experiment.Resolver, log *logger.Logger) *Selector {
	return &Selector{pipeline: pipeline, resolver: resolver, log: log}
}

// Select narrows candidates through the targeting pipeline, resolves
// experiment membership, and returns the highest-priority survivor. Ties
// break by most recent creation time, so the result is deterministic for
// a fixed candidate set regardless of input order. A nil result means no
// campaign is eligible; that is not an error.
func (s *Selector) Select(ctx context.Context, campaigns []domain.Campaign, experiments map[uuid.UUID]domain.Experiment, visitor domain.VisitorContext) *domain.Campaign {
	eligible := s.pipeline.Filter(ctx, campaigns, visitor)
	if len(eligible) == 0 {
		return nil
	}

	candidates := s.pruneExperimentSiblings(eligible, experiments, visitor)
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		// Final deterministic tiebreak for identical timestamps.
		return candidates[i].ID.String() > candidates[j].ID.String()
	})

	winner := candidates[0]
	return &winner
}

// pruneExperimentSiblings keeps, for each experiment, only the variant
// this visitor is bound to. Sibling variants are discarded entirely:
// they must never be candidates even when independently eligible.
func (s *Selector) pruneExperimentSiblings(campaigns []domain.Campaign, experiments map[uuid.UUID]domain.Experiment, visitor domain.VisitorContext) []domain.Campaign {
	assigned := make(map[uuid.UUID]string)

	out := make([]domain.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if c.ExperimentID == nil {
			out = append(out, c)
			continue
		}

		expID := *c.ExperimentID
		key, ok := assigned[expID]
		if !ok {
			exp, found := experiments[expID]
			if !found {
				if s.log != nil {
					s.log.Warn("campaign references unknown experiment",
						zap.String("campaign_id", c.ID.String()),
						zap.String("experiment_id", expID.String()))
				}
				continue
			}
			resolved, err := s.resolver.Resolve(exp, visitor.VisitorID)
			if err != nil {
				if s.log != nil {
					s.log.Warn("variant resolution failed",
						zap.String("experiment_id", expID.String()), zap.Error(err))
				}
				continue
			}
			key = resolved
			assigned[expID] = key
		}

		if c.VariantKey == key {
			out = append(out, c)
		}
	}
	return out
}
