package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/infra/config"
	"github.com/resourceldg/cuiot-sub001/internal/transport/http/handlers"
	"github.com/resourceldg/cuiot-sub001/internal/transport/http/middleware"
	"github.com/resourceldg/cuiot-sub001/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Roles       *usecase.RoleService
	Assignments *usecase.AssignmentService
	Authorizer  *usecase.Authorizer
	Reconciler  *usecase.Reconciler
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware. Every
// endpoint under /api/v1 requires a verified bearer token; the guard then
// resolves permissions from the store, so a stale token never grants access
// its holder's current roles would not.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth([]byte(deps.Config.Auth.JWTSecret))

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(authMiddleware)
	{
		checker := deps.Services.Authorizer

		roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
		rolesGroup := api.Group("/roles")
		rolesGroup.GET("", middleware.RequirePermission(checker, usecase.PermissionRolesRead), roleHandler.ListRoles)
		rolesGroup.GET("/:id", middleware.RequirePermission(checker, usecase.PermissionRolesRead), roleHandler.GetRole)
		rolesGroup.POST("", middleware.RequirePermission(checker, usecase.PermissionRolesManage), roleHandler.CreateRole)
		rolesGroup.PATCH("/:id", middleware.RequirePermission(checker, usecase.PermissionRolesManage), roleHandler.UpdateRole)
		rolesGroup.DELETE("/:id", middleware.RequirePermission(checker, usecase.PermissionRolesManage), roleHandler.DeactivateRole)

		assignmentHandler := handlers.NewAssignmentHandler(deps.Services.Assignments, deps.Services.Authorizer)
		principalsGroup := api.Group("/principals/:id")
		principalsGroup.POST("/roles", middleware.RequirePermission(checker, usecase.PermissionRolesAssign), assignmentHandler.AssignRole)
		principalsGroup.DELETE("/roles/:name", middleware.RequirePermission(checker, usecase.PermissionRolesAssign), assignmentHandler.RevokeRole)
		principalsGroup.GET("/roles", middleware.RequirePermission(checker, usecase.PermissionRolesRead), assignmentHandler.ListRoles)
		principalsGroup.GET("/assignments", middleware.RequirePermission(checker, usecase.PermissionRolesRead), assignmentHandler.ListAssignments)
		principalsGroup.GET("/access", middleware.RequirePermission(checker, usecase.PermissionRolesRead), assignmentHandler.CheckAccess)

		if deps.Services.Reconciler != nil {
			reconcileHandler := handlers.NewReconcileHandler(deps.Services.Reconciler)
			adminGroup := api.Group("/admin")
			adminGroup.POST("/reconcile", middleware.RequireRole(checker, domain.RoleAdmin), reconcileHandler.Run)
		}
	}

	return r
}
