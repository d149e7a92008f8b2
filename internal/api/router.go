package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/portalkit/auth-portal/internal/api/handler"
	"github.com/portalkit/auth-portal/internal/api/middleware"
	"github.com/portalkit/auth-portal/internal/api/view"
	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/sessions"
)

// Dependencies carries everything the router needs wired in.
type Dependencies struct {
	Registry     *sessions.Registry
	Redis        *redis.Client // nil when sessions live in memory only
	Log          zerolog.Logger
	CookieSecure bool
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Renderer = view.MustRenderer()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("portal"))

	// --- Handlers ---
	pageHandler := handler.NewPageHandler(deps.Log)
	authHandler := handler.NewAuthHandler(deps.Log)

	// --- Operational endpoints (no session required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Redis)

	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/healthz", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/healthz/ready", readinessHandler.Readiness)  // readiness – are dependencies up?

	// --- Public pages (session resolved, no auth requirement) ---
	session := middleware.Session(deps.Registry, deps.CookieSecure)

	public := e.Group("", session)
	public.GET("/", pageHandler.Landing)
	public.GET("/login", authHandler.LoginForm)
	public.POST("/login", authHandler.Login)
	public.GET("/register", authHandler.RegisterForm)
	public.POST("/register", authHandler.Register)
	public.POST("/logout", authHandler.Logout)

	// --- Authenticated pages (any role) ---
	dashboard := e.Group("/dashboard", session, middleware.Guard())
	dashboard.GET("", pageHandler.Dashboard)
	dashboard.POST("/password", authHandler.ChangePassword)

	// --- Admin-only operations ---
	users := dashboard.Group("/users", middleware.Guard(domain.RoleAdmin))
	users.POST("/role", authHandler.UpdateRole)

	return e
}
