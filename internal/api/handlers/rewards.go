package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/discount"
	rewardsvc "github.com/acme/popup-campaign-engine/internal/service/reward"
)

type playRequest struct {
	CampaignID string         `json:"campaign_id"`
	Token      string         `json:"token"`
	Email      string         `json:"email"`
	Visitor    visitorRequest `json:"visitor"`
}

type rewardViewResponse struct {
	DeliveryMode string `json:"delivery_mode"`
	Code         string `json:"code,omitempty"`
	AutoApply    bool   `json:"auto_apply"`
	Pending      bool   `json:"pending"`
}

type playResponse struct {
	Declined bool                `json:"declined"`
	Reason   string              `json:"reason,omitempty"`
	Prize    string              `json:"prize,omitempty"`
	Reward   *rewardViewResponse `json:"reward,omitempty"`
	LeadID   *uuid.UUID          `json:"lead_id,omitempty"`
}

func (h *HandlerSet) play(ctx *fiber.Ctx) error {
	var req playRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	campaignID, err := uuid.Parse(req.CampaignID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	result, err := h.rewards.Play(ctx.Context(), rewardsvc.PlayInput{
		CampaignID: campaignID,
		Token:      req.Token,
		Email:      req.Email,
		Visitor:    toVisitorContext(ctx, req.Visitor),
	})
	if err != nil {
		return translateError(err)
	}

	resp := playResponse{
		Declined: result.Declined,
		Reason:   result.Reason,
		Prize:    result.PrizeLabel,
		Reward:   toRewardView(result.Reward),
		LeadID:   result.LeadID,
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

type leadRequest struct {
	CampaignID string         `json:"campaign_id"`
	Token      string         `json:"token"`
	Email      string         `json:"email"`
	Visitor    visitorRequest `json:"visitor"`
}

type leadResponse struct {
	Declined bool                `json:"declined"`
	Reason   string              `json:"reason,omitempty"`
	LeadID   uuid.UUID           `json:"lead_id,omitempty"`
	Reward   *rewardViewResponse `json:"reward,omitempty"`
}

func (h *HandlerSet) submitLead(ctx *fiber.Ctx) error {
	var req leadRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	campaignID, err := uuid.Parse(req.CampaignID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	result, err := h.rewards.SubmitLead(ctx.Context(), rewardsvc.LeadInput{
		CampaignID: campaignID,
		Token:      req.Token,
		Email:      req.Email,
		Visitor:    toVisitorContext(ctx, req.Visitor),
	})
	if err != nil {
		return translateError(err)
	}

	resp := leadResponse{
		Declined: result.Declined,
		Reason:   result.Reason,
		LeadID:   result.LeadID,
		Reward:   toRewardView(result.Reward),
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func toRewardView(view *discount.RewardView) *rewardViewResponse {
	if view == nil {
		return nil
	}
	return &rewardViewResponse{
		DeliveryMode: string(view.DeliveryMode),
		Code:         view.Code,
		AutoApply:    view.AutoApply,
		Pending:      view.Pending,
	}
}
