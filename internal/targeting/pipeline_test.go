package targeting

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

func campaignWithRules(rules domain.TargetRules) domain.Campaign {
	return domain.Campaign{
		ID:          uuid.New(),
		Status:      domain.CampaignStatusActive,
		TargetRules: rules,
	}
}

func TestDefaultAllow(t *testing.T) {
	// A campaign with no rules at all survives every stage for every
	// visitor shape, including an empty context.
	campaigns := []domain.Campaign{campaignWithRules(domain.TargetRules{})}

	visitors := []domain.VisitorContext{
		{},
		{DeviceType: "mobile", PageURL: "https://shop.example/products/hat", Country: "DE"},
		{DeviceType: "desktop", Attributes: map[string]any{"cart_item_count": 3}},
	}

	p := New(nil, nil)
	for _, v := range visitors {
		got := p.Filter(context.Background(), campaigns, v)
		if len(got) != 1 {
			t.Errorf("expected default-allow for visitor %+v, got %d campaigns", v, len(got))
		}
	}
}

func TestDisabledRuleIsPassThrough(t *testing.T) {
	campaigns := []domain.Campaign{campaignWithRules(domain.TargetRules{
		Devices: &domain.DeviceRule{Enabled: false, Devices: []string{"desktop"}},
		Geo:     &domain.GeoRule{Enabled: false, Mode: domain.GeoModeInclude, Countries: []string{"US"}},
	})}

	visitor := domain.VisitorContext{DeviceType: "mobile", Country: "FR"}
	got := New(nil, nil).Filter(context.Background(), campaigns, visitor)
	if len(got) != 1 {
		t.Fatalf("disabled rules must not exclude, got %d campaigns", len(got))
	}
}

func TestDeviceStage(t *testing.T) {
	mobileOnly := campaignWithRules(domain.TargetRules{
		Devices: &domain.DeviceRule{Enabled: true, Devices: []string{"mobile"}},
	})

	p := New(nil, nil)

	got := p.Filter(context.Background(), []domain.Campaign{mobileOnly}, domain.VisitorContext{DeviceType: "mobile"})
	if len(got) != 1 {
		t.Fatalf("expected mobile visitor to match mobile-only campaign")
	}

	got = p.Filter(context.Background(), []domain.Campaign{mobileOnly}, domain.VisitorContext{DeviceType: "desktop"})
	if len(got) != 0 {
		t.Fatalf("expected desktop visitor to be excluded")
	}
}

func TestPageStageGlob(t *testing.T) {
	cases := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"*", "https://shop.example/anything", true},
		{"*/products/*", "https://shop.example/products/hat", true},
		{"*/products/*", "https://shop.example/collections/all", false},
		{"https://shop.example/cart", "https://shop.example/cart", true},
		{"https://shop.example/cart", "https://shop.example/cart/", true},
		{"*/sale", "https://shop.example/collections/sale", true},
		{"*/sale", "https://shop.example/sale/ended", false},
	}

	for _, tc := range cases {
		if got := MatchPage(tc.pattern, tc.url); got != tc.want {
			t.Errorf("MatchPage(%q, %q) = %v, want %v", tc.pattern, tc.url, got, tc.want)
		}
	}
}

func TestGeoStage(t *testing.T) {
	include := campaignWithRules(domain.TargetRules{
		Geo: &domain.GeoRule{Enabled: true, Mode: domain.GeoModeInclude, Countries: []string{"us", "CA"}},
	})
	exclude := campaignWithRules(domain.TargetRules{
		Geo: &domain.GeoRule{Enabled: true, Mode: domain.GeoModeExclude, Countries: []string{"DE"}},
	})

	p := New(nil, nil)

	got := p.Filter(context.Background(), []domain.Campaign{include, exclude}, domain.VisitorContext{Country: "US"})
	if len(got) != 2 {
		t.Fatalf("US visitor: expected both campaigns, got %d", len(got))
	}

	got = p.Filter(context.Background(), []domain.Campaign{include, exclude}, domain.VisitorContext{Country: "DE"})
	if len(got) != 0 {
		t.Fatalf("DE visitor: expected no campaigns, got %d", len(got))
	}
}

func TestGeoStageEmptyCountryListPassesAll(t *testing.T) {
	c := campaignWithRules(domain.TargetRules{
		Geo: &domain.GeoRule{Enabled: true, Mode: domain.GeoModeInclude},
	})
	got := New(nil, nil).Filter(context.Background(), []domain.Campaign{c}, domain.VisitorContext{Country: "JP"})
	if len(got) != 1 {
		t.Fatalf("enabled geo rule with empty country list must pass all")
	}
}

func TestGeoStageUnknownVisitorCountryPassesAll(t *testing.T) {
	c := campaignWithRules(domain.TargetRules{
		Geo: &domain.GeoRule{Enabled: true, Mode: domain.GeoModeInclude, Countries: []string{"US"}},
	})
	got := New(nil, nil).Filter(context.Background(), []domain.Campaign{c}, domain.VisitorContext{})
	if len(got) != 1 {
		t.Fatalf("geo rules cannot be evaluated without a country; expected pass-all")
	}
}

func TestAudienceStage(t *testing.T) {
	rule := &domain.AudienceRule{
		Enabled: true,
		Root: &domain.AudienceNode{
			Combinator: domain.CombinatorAnd,
			Children: []*domain.AudienceNode{
				{Condition: &domain.AudienceCondition{Field: "cart_item_count", Operator: domain.OpGreaterThan, Value: 2}},
				{
					Combinator: domain.CombinatorOr,
					Children: []*domain.AudienceNode{
						{Condition: &domain.AudienceCondition{Field: "customer_tag", Operator: domain.OpEquals, Value: "vip"}},
						{Condition: &domain.AudienceCondition{Field: "returning", Operator: domain.OpEquals, Value: true}},
					},
				},
			},
		},
	}
	c := campaignWithRules(domain.TargetRules{Audience: rule})
	p := New(nil, nil)

	match := domain.VisitorContext{Attributes: map[string]any{"cart_item_count": 3, "returning": true}}
	if got := p.Filter(context.Background(), []domain.Campaign{c}, match); len(got) != 1 {
		t.Fatalf("expected matching visitor to pass audience rule")
	}

	noMatch := domain.VisitorContext{Attributes: map[string]any{"cart_item_count": 3, "returning": false}}
	if got := p.Filter(context.Background(), []domain.Campaign{c}, noMatch); len(got) != 0 {
		t.Fatalf("expected non-matching visitor to be excluded")
	}

	tooFew := domain.VisitorContext{Attributes: map[string]any{"cart_item_count": 1, "returning": true}}
	if got := p.Filter(context.Background(), []domain.Campaign{c}, tooFew); len(got) != 0 {
		t.Fatalf("expected visitor below cart threshold to be excluded")
	}
}

func TestMalformedAudienceRuleFailsClosedForThatCampaignOnly(t *testing.T) {
	malformed := campaignWithRules(domain.TargetRules{
		Audience: &domain.AudienceRule{
			Enabled: true,
			Root:    &domain.AudienceNode{Combinator: "nand", Children: []*domain.AudienceNode{{Condition: &domain.AudienceCondition{Field: "x", Operator: domain.OpEquals, Value: 1}}}},
		},
	})
	healthy := campaignWithRules(domain.TargetRules{})

	got := New(nil, nil).Filter(context.Background(), []domain.Campaign{malformed, healthy}, domain.VisitorContext{})
	if len(got) != 1 || got[0].ID != healthy.ID {
		t.Fatalf("malformed rule must drop only its own campaign, got %d survivors", len(got))
	}
}

type stubGate struct {
	allowed map[string]bool
	err     error
	calls   int
}

func (s *stubGate) Allow(_ context.Context, _ string, campaignID string, _ domain.FrequencyCapConfig) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[campaignID], nil
}

func TestFrequencyStage(t *testing.T) {
	capped := campaignWithRules(domain.TargetRules{})
	capped.FrequencyCap = domain.FrequencyCapConfig{MaxPerSession: 1}
	uncapped := campaignWithRules(domain.TargetRules{})

	gate := &stubGate{allowed: map[string]bool{capped.ID.String(): false}}
	got := New(nil, gate).Filter(context.Background(), []domain.Campaign{capped, uncapped}, domain.VisitorContext{VisitorID: "v1"})

	if len(got) != 1 || got[0].ID != uncapped.ID {
		t.Fatalf("expected capped campaign to be excluded, got %d survivors", len(got))
	}
	if gate.calls != 1 {
		t.Errorf("uncapped campaigns must not hit the counter store, got %d calls", gate.calls)
	}
}

func TestFrequencyStageFailsOpenOnStoreError(t *testing.T) {
	c := campaignWithRules(domain.TargetRules{})
	c.FrequencyCap = domain.FrequencyCapConfig{MaxPerDay: 2}

	gate := &stubGate{err: errors.New("connection refused")}
	got := New(nil, gate).Filter(context.Background(), []domain.Campaign{c}, domain.VisitorContext{VisitorID: "v1"})
	if len(got) != 1 {
		t.Fatalf("counter store outage must not block delivery")
	}
}

func TestStageOrderIsNarrowingOnly(t *testing.T) {
	a := campaignWithRules(domain.TargetRules{})
	a.Priority = 1
	b := campaignWithRules(domain.TargetRules{})
	b.Priority = 99

	got := New(nil, nil).Filter(context.Background(), []domain.Campaign{a, b}, domain.VisitorContext{})
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("pipeline must preserve input order; ranking happens later")
	}
}
