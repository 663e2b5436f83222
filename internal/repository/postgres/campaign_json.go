package postgres

import (
	"time"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

// JSON shapes for the authoring-owned jsonb columns. They are kept apart
// from the domain types so wire-format renames never leak into the engine.

type targetRulesJSON struct {
	Devices  *deviceRuleJSON   `json:"devices,omitempty"`
	Pages    *pageRuleJSON     `json:"pages,omitempty"`
	Geo      *geoRuleJSON      `json:"geo,omitempty"`
	Audience *audienceRuleJSON `json:"audience,omitempty"`
}

type deviceRuleJSON struct {
	Enabled bool     `json:"enabled"`
	Devices []string `json:"devices"`
}

type pageRuleJSON struct {
	Enabled  bool     `json:"enabled"`
	Patterns []string `json:"patterns"`
}

type geoRuleJSON struct {
	Enabled   bool     `json:"enabled"`
	Mode      string   `json:"mode"`
	Countries []string `json:"countries"`
}

type audienceRuleJSON struct {
	Enabled bool              `json:"enabled"`
	Root    *audienceNodeJSON `json:"root"`
}

type audienceNodeJSON struct {
	Combinator string                 `json:"combinator,omitempty"`
	Children   []*audienceNodeJSON    `json:"children,omitempty"`
	Condition  *audienceConditionJSON `json:"condition,omitempty"`
}

type audienceConditionJSON struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type discountConfigJSON struct {
	ValueType       string             `json:"value_type"`
	Value           float64            `json:"value"`
	DeliveryMode    string             `json:"delivery_mode"`
	Tiers           []discountTierJSON `json:"tiers,omitempty"`
	AuthorizedEmail string             `json:"authorized_email,omitempty"`
	ExpiresAfterSec int64              `json:"expires_after_seconds,omitempty"`
}

type discountTierJSON struct {
	MinSubtotal float64 `json:"min_subtotal"`
	Value       float64 `json:"value"`
}

type prizeJSON struct {
	Label       string              `json:"label"`
	Probability float64             `json:"probability"`
	Discount    *discountConfigJSON `json:"discount,omitempty"`
}

func (j targetRulesJSON) toDomain() domain.TargetRules {
	rules := domain.TargetRules{}
	if j.Devices != nil {
		rules.Devices = &domain.DeviceRule{Enabled: j.Devices.Enabled, Devices: j.Devices.Devices}
	}
	if j.Pages != nil {
		rules.Pages = &domain.PageRule{Enabled: j.Pages.Enabled, Patterns: j.Pages.Patterns}
	}
	if j.Geo != nil {
		rules.Geo = &domain.GeoRule{
			Enabled:   j.Geo.Enabled,
			Mode:      domain.GeoMode(j.Geo.Mode),
			Countries: j.Geo.Countries,
		}
	}
	if j.Audience != nil {
		rules.Audience = &domain.AudienceRule{
			Enabled: j.Audience.Enabled,
			Root:    j.Audience.Root.toDomain(),
		}
	}
	return rules
}

func (j *audienceNodeJSON) toDomain() *domain.AudienceNode {
	if j == nil {
		return nil
	}
	node := &domain.AudienceNode{Combinator: domain.AudienceCombinator(j.Combinator)}
	if j.Condition != nil {
		node.Condition = &domain.AudienceCondition{
			Field:    j.Condition.Field,
			Operator: domain.AudienceOperator(j.Condition.Operator),
			Value:    j.Condition.Value,
		}
	}
	for _, child := range j.Children {
		node.Children = append(node.Children, child.toDomain())
	}
	return node
}

func (j discountConfigJSON) toDomain() domain.DiscountConfig {
	cfg := domain.DiscountConfig{
		ValueType:       domain.DiscountValueType(j.ValueType),
		Value:           j.Value,
		DeliveryMode:    domain.DeliveryMode(j.DeliveryMode),
		AuthorizedEmail: j.AuthorizedEmail,
		ExpiresAfter:    time.Duration(j.ExpiresAfterSec) * time.Second,
	}
	for _, t := range j.Tiers {
		cfg.Tiers = append(cfg.Tiers, domain.DiscountTier{MinSubtotal: t.MinSubtotal, Value: t.Value})
	}
	return cfg
}

func (j prizeJSON) toDomain() domain.Prize {
	prize := domain.Prize{Label: j.Label, Probability: j.Probability}
	if j.Discount != nil {
		dc := j.Discount.toDomain()
		prize.Discount = &dc
	}
	return prize
}
