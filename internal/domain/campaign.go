package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft    CampaignStatus = "draft"
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusPaused   CampaignStatus = "paused"
	CampaignStatusArchived CampaignStatus = "archived"
)

// CampaignTemplate enumerates the popup rendering templates. Wheel and
// scratch templates are gamified: they require a server-side prize draw
// before a discount is issued.
type CampaignTemplate string

const (
	TemplatePopup   CampaignTemplate = "popup"
	TemplateWheel   CampaignTemplate = "wheel"
	TemplateScratch CampaignTemplate = "scratch"
)

// Campaign models one configured popup campaign owned by a store. The
// engine consumes campaigns read-only; authoring happens elsewhere.
type Campaign struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	Name         string
	Status       CampaignStatus
	Template     CampaignTemplate
	Priority     int
	TargetRules  TargetRules
	FrequencyCap FrequencyCapConfig
	Discount     *DiscountConfig
	Prizes       []Prize

	// Experiment linkage. A campaign with a non-nil ExperimentID is one
	// variant of an A/B experiment; sibling variants share the id.
	ExperimentID *uuid.UUID
	VariantKey   string
	IsControl    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsGamified reports whether the campaign needs a prize draw on play.
func (c *Campaign) IsGamified() bool {
	return c.Template == TemplateWheel || c.Template == TemplateScratch
}

// TargetRules groups the independently enableable targeting dimensions.
// A nil or disabled dimension matches every visitor (default allow).
type TargetRules struct {
	Devices  *DeviceRule
	Pages    *PageRule
	Geo      *GeoRule
	Audience *AudienceRule
}

// DeviceRule restricts delivery to the listed device types.
type DeviceRule struct {
	Enabled bool
	Devices []string
}

// PageRule restricts delivery to pages matching any of the glob patterns.
type PageRule struct {
	Enabled  bool
	Patterns []string
}

// GeoMode selects include or exclude semantics for a geo rule.
type GeoMode string

const (
	GeoModeInclude GeoMode = "include"
	GeoModeExclude GeoMode = "exclude"
)

// GeoRule restricts delivery by visitor country.
type GeoRule struct {
	Enabled   bool
	Mode      GeoMode
	Countries []string
}

// AudienceCombinator joins audience conditions.
type AudienceCombinator string

const (
	CombinatorAnd AudienceCombinator = "and"
	CombinatorOr  AudienceCombinator = "or"
)

// AudienceRule evaluates session-derived visitor attributes against a
// boolean expression tree.
type AudienceRule struct {
	Enabled bool
	Root    *AudienceNode
}

// AudienceNode is either a leaf condition or a combinator over children.
type AudienceNode struct {
	Combinator AudienceCombinator
	Children   []*AudienceNode
	Condition  *AudienceCondition
}

// AudienceOperator enumerates supported comparison operators.
type AudienceOperator string

const (
	OpEquals      AudienceOperator = "equals"
	OpNotEquals   AudienceOperator = "not_equals"
	OpContains    AudienceOperator = "contains"
	OpGreaterThan AudienceOperator = "greater_than"
	OpLessThan    AudienceOperator = "less_than"
)

// AudienceCondition is one (field, operator, value) comparison.
type AudienceCondition struct {
	Field    string
	Operator AudienceOperator
	Value    any
}

// FrequencyCapConfig limits how often a campaign may be shown to one
// visitor. A zero value on any field means unbounded for that dimension.
type FrequencyCapConfig struct {
	MaxPerSession   int
	MaxPerDay       int
	CooldownSeconds int
}

// Unbounded reports whether no cap dimension is configured.
func (c FrequencyCapConfig) Unbounded() bool {
	return c.MaxPerSession <= 0 && c.MaxPerDay <= 0 && c.CooldownSeconds <= 0
}

// VisitorContext is the ephemeral, request-scoped description of one
// storefront visitor. It is never persisted by the engine.
type VisitorContext struct {
	VisitorID  string
	SessionID  string
	DeviceType string
	PageURL    string
	Country    string
	ClientIP   string
	// Attributes carries session-derived facts such as cart_item_count
	// or cart_subtotal, consumed by audience rules and discount tiering.
	Attributes map[string]any
}

// CartSubtotal extracts the cart subtotal attribute if present.
func (v VisitorContext) CartSubtotal() (float64, bool) {
	raw, ok := v.Attributes["cart_subtotal"]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
