package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/popup-campaign-engine/internal/domain"
	deliverysvc "github.com/acme/popup-campaign-engine/internal/service/delivery"
)

type visitorRequest struct {
	VisitorID  string         `json:"visitor_id"`
	SessionID  string         `json:"session_id"`
	DeviceType string         `json:"device_type"`
	PageURL    string         `json:"page_url"`
	Country    string         `json:"country"`
	Attributes map[string]any `json:"attributes"`
}

type resolveRequest struct {
	StoreID string         `json:"store_id"`
	Visitor visitorRequest `json:"visitor"`
}

type campaignDeliveryResponse struct {
	ID         uuid.UUID `json:"id"`
	Template   string    `json:"template"`
	Priority   int       `json:"priority"`
	VariantKey string    `json:"variant_key,omitempty"`
	IsControl  bool      `json:"is_control"`
	Prizes     []string  `json:"prizes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type resolveResponse struct {
	Campaign *campaignDeliveryResponse `json:"campaign"`
	Token    string                    `json:"token,omitempty"`
}

func (h *HandlerSet) resolveCampaign(ctx *fiber.Ctx) error {
	var req resolveRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	storeID, err := uuid.Parse(req.StoreID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid store id")
	}
	if req.Visitor.VisitorID == "" {
		return fiber.NewError(http.StatusBadRequest, "visitor id is required")
	}

	result, err := h.delivery.Resolve(ctx.Context(), deliverysvc.ResolveInput{
		StoreID: storeID,
		Visitor: toVisitorContext(ctx, req.Visitor),
	})
	if err != nil {
		return translateError(err)
	}

	resp := resolveResponse{Token: result.Token}
	if result.Campaign != nil {
		resp.Campaign = toCampaignDelivery(result.Campaign)
	}
	return ctx.Status(http.StatusOK).JSON(resp)
}

func toVisitorContext(ctx *fiber.Ctx, req visitorRequest) domain.VisitorContext {
	return domain.VisitorContext{
		VisitorID:  req.VisitorID,
		SessionID:  req.SessionID,
		DeviceType: req.DeviceType,
		PageURL:    req.PageURL,
		Country:    req.Country,
		ClientIP:   ctx.IP(),
		Attributes: req.Attributes,
	}
}

func toCampaignDelivery(campaign *domain.Campaign) *campaignDeliveryResponse {
	resp := &campaignDeliveryResponse{
		ID:         campaign.ID,
		Template:   string(campaign.Template),
		Priority:   campaign.Priority,
		VariantKey: campaign.VariantKey,
		IsControl:  campaign.IsControl,
		CreatedAt:  campaign.CreatedAt,
	}
	// Only labels cross the wire; weights stay server-side.
	for _, prize := range campaign.Prizes {
		resp.Prizes = append(resp.Prizes, prize.Label)
	}
	return resp
}
