package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/app"
	"github.com/acme/popup-campaign-engine/internal/repository"
	deliverysvc "github.com/acme/popup-campaign-engine/internal/service/delivery"
	rewardsvc "github.com/acme/popup-campaign-engine/internal/service/reward"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	delivery  *deliverysvc.Service
	rewards   *rewardsvc.Service
	campaigns repository.CampaignRepository
	stats     repository.CampaignStatisticsRepository
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	services := container.Services()
	repos := container.Repositories()
	return &HandlerSet{
		container: container,
		delivery:  services.Delivery,
		rewards:   services.Reward,
		campaigns: repos.Campaign,
		stats:     repos.Stats,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	delivery := v1.Group("/delivery")
	delivery.Post("/resolve", h.resolveCampaign)

	rewards := v1.Group("/rewards")
	rewards.Post("/play", h.play)
	rewards.Post("/lead", h.submitLead)

	campaigns := v1.Group("/campaigns")
	campaigns.Get("/:id", h.getCampaign)
	campaigns.Get("/:id/stats", h.campaignStats)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
