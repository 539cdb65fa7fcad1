package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/stackbill/stackbill/internal/billingmodel"
	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	"github.com/stackbill/stackbill/internal/classifier"
	classifierdomain "github.com/stackbill/stackbill/internal/classifier/domain"
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/locks"
	obslogger "github.com/stackbill/stackbill/internal/observability/logger"
	obsmetrics "github.com/stackbill/stackbill/internal/observability/metrics"
	obstracing "github.com/stackbill/stackbill/internal/observability/tracing"
	"github.com/stackbill/stackbill/internal/provider"
	"github.com/stackbill/stackbill/internal/reconciler"
	reconcilerdomain "github.com/stackbill/stackbill/internal/reconciler/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	locks.Module,
	provider.Module,
	classifier.Module,
	billingmodel.Module,
	reconciler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine        *gin.Engine
	cfg           config.Config
	classifierSvc classifierdomain.Service
	modelSvc      billingdomain.Service
	reconcilerSvc reconcilerdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	ClassifierSvc classifierdomain.Service
	ModelSvc      billingdomain.Service
	ReconcilerSvc reconcilerdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		classifierSvc: p.ClassifierSvc,
		modelSvc:      p.ModelSvc,
		reconcilerSvc: p.ReconcilerSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OrgContext())

	api.POST("/classify", s.Classify)

	api.POST("/billing_models", s.CreateBillingModel)
	api.GET("/billing_models", s.ListBillingModels)
	api.GET("/billing_models/:id", s.GetBillingModel)
	api.PUT("/billing_models/:id", s.UpdateBillingModel)
	api.DELETE("/billing_models/:id", s.DeleteBillingModel)

	api.POST("/billing_models/:id/plan", s.PlanDeployment)
	api.POST("/billing_models/:id/deploy", s.Deploy)
	api.GET("/deployments", s.ListDeployments)

	api.POST("/provider/cleanup/plan", s.PlanCleanup)
	api.POST("/provider/cleanup", s.ExecuteCleanup)
}
