package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
)

// Campaign reads are admin-facing and read-only; authoring lives in the
// campaign-builder domain.

type campaignResponse struct {
	ID         uuid.UUID             `json:"id"`
	StoreID    uuid.UUID             `json:"store_id"`
	Status     domain.CampaignStatus `json:"status"`
	Template   string                `json:"template"`
	Priority   int                   `json:"priority"`
	VariantKey string                `json:"variant_key,omitempty"`
	IsControl  bool                  `json:"is_control"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

type campaignStatsResponse struct {
	Impressions int64 `json:"impressions"`
	Plays       int64 `json:"plays"`
	Leads       int64 `json:"leads"`
	CodesIssued int64 `json:"codes_issued"`
	Declines    int64 `json:"declines"`
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(campaignResponse{
		ID:         campaign.ID,
		StoreID:    campaign.StoreID,
		Status:     campaign.Status,
		Template:   string(campaign.Template),
		Priority:   campaign.Priority,
		VariantKey: campaign.VariantKey,
		IsControl:  campaign.IsControl,
		CreatedAt:  campaign.CreatedAt,
		UpdatedAt:  campaign.UpdatedAt,
	})
}

func (h *HandlerSet) campaignStats(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	stats, err := h.stats.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(campaignStatsResponse{
		Impressions: stats.Impressions,
		Plays:       stats.Plays,
		Leads:       stats.Leads,
		CodesIssued: stats.CodesIssued,
		Declines:    stats.Declines,
	})
}
