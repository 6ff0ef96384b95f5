package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync"
	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/config"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/entitlement"
	entitlementdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/entitlement/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability"
	obsmiddleware "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/logger"
	obsmetrics "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/metrics"
	obstracing "github.com/benjask5360/tuckandtaleMVP-sub002/internal/observability/tracing"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/ratelimit"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration"
	regenerationdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	tier.Module,
	profile.Module,
	usage.Module,
	entitlement.Module,
	regeneration.Module,
	ratelimit.Module,
	billingsync.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	tierSvc         tierdomain.Service
	profileSvc      profiledomain.Service
	usageSvc        usagedomain.Service
	entitlementSvc  entitlementdomain.Service
	regenerationSvc regenerationdomain.Service
	billingSvc      billingdomain.Service
	httpMetrics     *obsmetrics.HTTPMetrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	TierSvc         tierdomain.Service
	ProfileSvc      profiledomain.Service
	UsageSvc        usagedomain.Service
	EntitlementSvc  entitlementdomain.Service
	RegenerationSvc regenerationdomain.Service
	BillingSvc      billingdomain.Service
	HTTPMetrics     *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		tierSvc:         p.TierSvc,
		profileSvc:      p.ProfileSvc,
		usageSvc:        p.UsageSvc,
		entitlementSvc:  p.EntitlementSvc,
		regenerationSvc: p.RegenerationSvc,
		billingSvc:      p.BillingSvc,
		httpMetrics:     p.HTTPMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	api.GET("/tiers", s.ListTiers)

	users := api.Group("/users/:user_id")
	{
		users.POST("", s.RegisterUser)
		users.GET("/tier", s.GetUserTier)

		// -------- Stories --------
		users.GET("/entitlements/story", s.CheckStoryEntitlement)
		users.POST("/usage/story", s.RecordStoryUsage)
		users.GET("/usage", s.GetUsageSummary)

		// -------- Features & profiles --------
		users.GET("/features/:feature", s.CheckFeatureAccess)
		users.POST("/profiles/check", s.CheckProfileLimit)

		// -------- Avatar regenerations --------
		users.GET("/characters/:character_id/regenerations", s.GetRegenerations)
		users.POST("/characters/:character_id/regenerations", s.RecordRegeneration)

		// -------- Billing --------
		users.POST("/billing/reconcile", s.ReconcileBilling)
	}
}

func (s *Server) registerAdminRoutes() {
	if s.cfg.AdminAPIToken == "" {
		s.log.Info("admin routes disabled, ADMIN_API_TOKEN is not set")
		return
	}

	admin := s.engine.Group("/v1/admin", s.AdminTokenRequired())
	admin.PUT("/tiers/:tier_id", s.UpsertTier)
	admin.POST("/usage/adjust", s.AdjustUsage)
}
