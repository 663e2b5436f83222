package selector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
	"github.com/acme/popup-campaign-engine/internal/experiment"
	"github.com/acme/popup-campaign-engine/internal/targeting"
)

type stubGate struct {
	denied map[string]bool
}

func (s *stubGate) Allow(_ context.Context, _ string, campaignID string, _ domain.FrequencyCapConfig) (bool, error) {
	return !s.denied[campaignID], nil
}

func newSelector(gate targeting.FrequencyGate) *Selector {
	return New(targeting.New(nil, gate), experiment.NewResolver(), nil)
}

func activeCampaign(priority int, createdAt time.Time) domain.Campaign {
	return domain.Campaign{
		ID:        uuid.New(),
		Status:    domain.CampaignStatusActive,
		Priority:  priority,
		CreatedAt: createdAt,
	}
}

func TestSelectHighestPriorityWins(t *testing.T) {
	now := time.Now()
	low := activeCampaign(1, now)
	high := activeCampaign(10, now.Add(-time.Hour))

	got := newSelector(nil).Select(context.Background(), []domain.Campaign{low, high}, nil, domain.VisitorContext{VisitorID: "v1"})
	if got == nil || got.ID != high.ID {
		t.Fatalf("expected priority 10 campaign to win")
	}
}

func TestSelectTieBreaksByMostRecentlyCreated(t *testing.T) {
	older := activeCampaign(5, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := activeCampaign(5, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	s := newSelector(nil)
	visitor := domain.VisitorContext{VisitorID: "v1"}

	// Input order must not matter.
	a := s.Select(context.Background(), []domain.Campaign{older, newer}, nil, visitor)
	b := s.Select(context.Background(), []domain.Campaign{newer, older}, nil, visitor)

	if a == nil || b == nil || a.ID != newer.ID || b.ID != newer.ID {
		t.Fatalf("tie must break to the most recently created campaign, independent of order")
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	now := time.Now()
	campaigns := []domain.Campaign{
		activeCampaign(3, now),
		activeCampaign(7, now.Add(-time.Minute)),
		activeCampaign(7, now.Add(-2*time.Minute)),
	}
	visitor := domain.VisitorContext{VisitorID: "steady"}

	s := newSelector(nil)
	first := s.Select(context.Background(), campaigns, nil, visitor)
	for i := 0; i < 50; i++ {
		again := s.Select(context.Background(), campaigns, nil, visitor)
		if again == nil || again.ID != first.ID {
			t.Fatalf("selection changed between identical calls")
		}
	}
}

func TestSelectEmptyAfterFilteringIsNone(t *testing.T) {
	c := activeCampaign(5, time.Now())
	c.TargetRules.Devices = &domain.DeviceRule{Enabled: true, Devices: []string{"mobile"}}

	got := newSelector(nil).Select(context.Background(), []domain.Campaign{c}, nil, domain.VisitorContext{DeviceType: "desktop"})
	if got != nil {
		t.Fatalf("expected none, got %v", got.ID)
	}
}

func TestSelectDiscardsSiblingVariantsEntirely(t *testing.T) {
	expID := uuid.New()
	varA := activeCampaign(5, time.Now())
	varA.ExperimentID = &expID
	varA.VariantKey = "a"
	varB := activeCampaign(50, time.Now()) // higher priority but a sibling
	varB.ExperimentID = &expID
	varB.VariantKey = "b"

	exp := domain.Experiment{
		ID: expID,
		Variants: []domain.Variant{
			{Key: "a", CampaignID: varA.ID, TrafficAllocation: 50},
			{Key: "b", CampaignID: varB.ID, TrafficAllocation: 50},
		},
	}
	experiments := map[uuid.UUID]domain.Experiment{expID: exp}

	s := newSelector(nil)
	resolver := experiment.NewResolver()

	// Whatever variant the visitor is bound to, the sibling must never
	// surface, even though it is independently eligible.
	for i := 0; i < 100; i++ {
		visitor := domain.VisitorContext{VisitorID: uuid.NewString()}
		bound, err := resolver.Resolve(exp, visitor.VisitorID)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		got := s.Select(context.Background(), []domain.Campaign{varA, varB}, experiments, visitor)
		if got == nil {
			t.Fatalf("expected a variant to be selected")
		}
		if got.VariantKey != bound {
			t.Fatalf("visitor bound to %q but shown %q", bound, got.VariantKey)
		}
	}
}

func TestSelectUnknownExperimentDropsVariant(t *testing.T) {
	expID := uuid.New()
	orphan := activeCampaign(99, time.Now())
	orphan.ExperimentID = &expID
	orphan.VariantKey = "a"
	plain := activeCampaign(1, time.Now())

	got := newSelector(nil).Select(context.Background(), []domain.Campaign{orphan, plain}, nil, domain.VisitorContext{VisitorID: "v1"})
	if got == nil || got.ID != plain.ID {
		t.Fatalf("variant with missing experiment config must be dropped")
	}
}

func TestSelectFrequencyCappedScenario(t *testing.T) {
	// Campaign with priority=10, maxPerSession=1: after one display the
	// same visitor gets none for the rest of the session.
	c := activeCampaign(10, time.Now())
	c.FrequencyCap = domain.FrequencyCapConfig{MaxPerSession: 1}

	gate := &stubGate{denied: map[string]bool{}}
	s := newSelector(gate)
	visitor := domain.VisitorContext{VisitorID: "v1", SessionID: "s1"}

	first := s.Select(context.Background(), []domain.Campaign{c}, nil, visitor)
	if first == nil || first.ID != c.ID {
		t.Fatalf("first call must select the campaign")
	}

	// Display confirmed; the session budget is now consumed.
	gate.denied[c.ID.String()] = true

	second := s.Select(context.Background(), []domain.Campaign{c}, nil, visitor)
	if second != nil {
		t.Fatalf("second call within the session must return none")
	}
}
