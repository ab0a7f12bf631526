// Package api exposes the advance engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/eaziwage/ewa/internal/advance"
	appmw "github.com/eaziwage/ewa/internal/middleware"
	"github.com/eaziwage/ewa/internal/notify"
	"github.com/eaziwage/ewa/internal/policy"
	"github.com/eaziwage/ewa/internal/workers"
)

// Deps are the collaborators the handlers call.
type Deps struct {
	Advances *advance.Service
	Workers  *workers.Service
	Inbox    notify.Inbox
	Policies policy.Provider
	Logger   *slog.Logger

	JWTSecret      string
	AllowedOrigins []string
	// RateLimit is requests per second per client on advance creation;
	// zero disables it.
	RateLimit float64
	// Ready reports whether backing services answer. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Handler holds the HTTP handlers.
type Handler struct {
	Deps
}

// NewRouter builds the echo instance with every route registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &Handler{Deps: d}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.Use(middleware.Recover())
	e.Use(requestLogger(d.Logger))
	if len(d.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: d.AllowedOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	// Health
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/ready", h.Ready)

	auth := appmw.JWTMiddleware(d.JWTSecret)

	// Employee
	me := e.Group("", auth, appmw.RequireRoles(appmw.RoleEmployee))
	me.GET("/me/eligibility", h.MyEligibility)
	me.GET("/me/summary", h.MySummary)
	me.POST("/me/kyc", h.SubmitKyc)
	me.POST("/advances/quote", h.Quote)
	if d.RateLimit > 0 {
		me.POST("/advances", h.CreateAdvance, middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStore(rate.Limit(d.RateLimit))))
	} else {
		me.POST("/advances", h.CreateAdvance)
	}
	me.GET("/advances", h.MyAdvances)
	me.GET("/advances/:id", h.MyAdvance)
	me.GET("/transactions", h.MyTransactions)

	// Any signed-in user
	inbox := e.Group("/notifications", auth)
	inbox.GET("", h.Notifications)
	inbox.POST("/:id/read", h.MarkNotificationRead)

	// Admin
	adminGroup := e.Group("/admin", auth, appmw.AdminGuard)
	adminGroup.GET("/advances", h.AdminAdvances)
	adminGroup.GET("/advances/:id", h.AdminAdvance)
	adminGroup.POST("/advances/:id/approve", h.ApproveAdvance)
	adminGroup.POST("/advances/:id/reject", h.RejectAdvance)
	adminGroup.POST("/advances/:id/disburse", h.DisburseAdvance)
	adminGroup.GET("/workers", h.AdminWorkers)
	adminGroup.GET("/workers/:id", h.AdminWorker)
	adminGroup.POST("/workers/:id/status", h.SetEmploymentStatus)
	adminGroup.POST("/workers/:id/kyc", h.ReviewKyc)
	adminGroup.POST("/workers/:id/risk", h.AssessRisk)
	adminGroup.POST("/workers/:id/limit", h.SetLimitCap)
	adminGroup.GET("/stats", h.Stats)
	adminGroup.POST("/sweep", h.Sweep)

	// Employer
	employer := e.Group("/employer", auth, appmw.RequireRoles(appmw.RoleEmployer), appmw.EmployerScope)
	employer.GET("/advances", h.EmployerAdvances)
	employer.GET("/workers", h.EmployerWorkers)
	employer.POST("/workers", h.OnboardWorker)
	employer.GET("/summary", h.EmployerSummary)
	employer.POST("/payroll/earnings", h.UploadEarnings)
	employer.POST("/payroll/close", h.ClosePayroll)
	employer.GET("/payroll/deductions", h.Deductions)

	return e
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}

// GET /ready
func (h *Handler) Ready(c echo.Context) error {
	if h.Deps.Ready != nil {
		if err := h.Deps.Ready(c.Request().Context()); err != nil {
			h.Logger.WarnContext(c.Request().Context(), "readiness check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	if _, err := h.Policies.Policy(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "policy unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
