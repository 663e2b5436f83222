package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/popup-campaign-engine/internal/api/handlers"
	"github.com/acme/popup-campaign-engine/internal/app"
)

// Server hosts the delivery and rewards HTTP surface.
type Server struct {
	fiber *fiber.App
	deps  *app.Container
}

// NewServer builds the Fiber app with tracing middleware and the full
// route table registered.
func NewServer(deps *app.Container, hs *handlers.HandlerSet) *Server {
	f := fiber.New(fiber.Config{
		AppName:      deps.Config.App.Name,
		ReadTimeout:  deps.Config.HTTP.ReadTimeout,
		WriteTimeout: deps.Config.HTTP.WriteTimeout,
		IdleTimeout:  deps.Config.HTTP.IdleTimeout,
		ErrorHandler: hs.ErrorHandler,
	})
	f.Use(otelfiber.Middleware())
	hs.Register(f)

	return &Server{fiber: f, deps: deps}
}

// Start serves HTTP traffic until the context is cancelled, then drains
// in-flight requests before returning.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	port := s.deps.Config.HTTP.Port
	s.deps.Logger.Info("http server listening", zap.Int("port", port))
	return s.fiber.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.fiber.ShutdownWithContext(ctx)
}
