// Package api wires HTTP handlers onto their routes.
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/api/handlers"
	apimw "github.com/jordanlanch/contentforge/pkg/api/middleware"
	"github.com/jordanlanch/contentforge/pkg/middleware"
)

// Handlers groups every HTTP handler the service exposes
type Handlers struct {
	Health     *handlers.HealthHandler
	Referral   *handlers.ReferralHandler
	Partner    *handlers.PartnerHandler
	Admin      *handlers.AdminHandler
	Generation *handlers.GenerationHandler
	Billing    *handlers.BillingHandler
}

// RouteConfig carries the route-level middleware settings
type RouteConfig struct {
	JWTSecret string
	// GenerationLimiter throttles caption generation per user. Nil disables it.
	GenerationLimiter *middleware.RateLimiter
}

// RegisterRoutes mounts every route on e
func RegisterRoutes(e *echo.Echo, h Handlers, cfg RouteConfig) {
	e.GET("/health", h.Health.Health)

	// Stripe signs the raw body, so the webhook sits outside the API group
	e.POST("/webhook/stripe", h.Billing.HandleWebhook)

	auth := apimw.JWTMiddleware(cfg.JWTSecret)
	v1 := e.Group("/api/v1")

	referrals := v1.Group("/referrals")
	referrals.GET("/validate", h.Referral.ValidateCode)
	referrals.POST("/attribute", h.Referral.Attribute, auth)

	partners := v1.Group("/partners", auth)
	partners.POST("/apply", h.Partner.Apply)
	partners.GET("/me/dashboard", h.Partner.Dashboard)

	generate := []echo.MiddlewareFunc{auth}
	if cfg.GenerationLimiter != nil {
		generate = append(generate, cfg.GenerationLimiter.Middleware())
	}
	v1.POST("/generate/captions", h.Generation.GenerateCaptions, generate...)

	// Browsers download statements through a link, so the token may come in the query
	v1.GET("/admin/partners/:id/statement.xlsx", h.Admin.Statement,
		apimw.JWTFromQueryOrHeader(cfg.JWTSecret), middleware.RequireAdmin())

	admin := v1.Group("/admin", auth, middleware.RequireAdmin())
	admin.GET("/partners", h.Admin.ListPartners)
	admin.POST("/partners/:id/status", h.Admin.SetStatus)
	admin.PUT("/partners/:id/rate", h.Admin.SetRate)
	admin.POST("/partners/:id/codes", h.Admin.CreateCode)
	admin.GET("/partners/:id/ledger", h.Admin.ListLedger)
	admin.DELETE("/codes/:code", h.Admin.DeactivateCode)
	admin.POST("/ledger/:id/pay", h.Admin.MarkPaid)
	admin.POST("/ledger/:id/reverse", h.Admin.Reverse)
}
