package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tabledesk/internal/audit"
	auditdomain "github.com/smallbiznis/tabledesk/internal/audit/domain"
	"github.com/smallbiznis/tabledesk/internal/catalog"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/smallbiznis/tabledesk/internal/clock"
	"github.com/smallbiznis/tabledesk/internal/config"
	obsmiddleware "github.com/smallbiznis/tabledesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tabledesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tabledesk/internal/observability/tracing"
	"github.com/smallbiznis/tabledesk/internal/order"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/payment"
	paymentdomain "github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/providers/pdf"
	"github.com/smallbiznis/tabledesk/internal/ratelimit"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	"github.com/smallbiznis/tabledesk/internal/salesreport"
	salesreportdomain "github.com/smallbiznis/tabledesk/internal/salesreport/domain"
	"github.com/smallbiznis/tabledesk/internal/tablesession"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	catalog.Module,
	tablesession.Module,
	order.Module,
	payment.Module,
	realtime.Module,
	ratelimit.Module,
	salesreport.Module,
	pdf.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
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

func registerGin(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	syncConfig   *config.SyncConfigHolder
	catalogSvc   catalogdomain.Service
	orderSvc     orderdomain.Service
	sessionSvc   sessiondomain.Service
	paymentSvc   paymentdomain.Service
	salesSvc     salesreportdomain.Service
	auditSvc     auditdomain.Service
	pdf          pdf.Provider
	hub          *realtime.Hub
	orderLimiter *ratelimit.OrderLimiter
	httpMetrics  *obsmetrics.HTTPMetrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	SyncConfig   *config.SyncConfigHolder `optional:"true"`
	CatalogSvc   catalogdomain.Service
	OrderSvc     orderdomain.Service
	SessionSvc   sessiondomain.Service
	PaymentSvc   paymentdomain.Service
	SalesSvc     salesreportdomain.Service
	AuditSvc     auditdomain.Service `optional:"true"`
	PDF          pdf.Provider
	Hub          *realtime.Hub           `optional:"true"`
	OrderLimiter *ratelimit.OrderLimiter `optional:"true"`
	HTTPMetrics  *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	syncConfig := p.SyncConfig
	if syncConfig == nil {
		syncConfig = config.NewStaticSyncConfigHolder(config.DefaultSyncConfig())
	}
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.handlers"),
		clock:        p.Clock,
		syncConfig:   syncConfig,
		catalogSvc:   p.CatalogSvc,
		orderSvc:     p.OrderSvc,
		sessionSvc:   p.SessionSvc,
		paymentSvc:   p.PaymentSvc,
		salesSvc:     p.SalesSvc,
		auditSvc:     p.AuditSvc,
		pdf:          p.PDF,
		hub:          p.Hub,
		orderLimiter: p.OrderLimiter,
		httpMetrics:  p.HTTPMetrics,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(ActorContext())

	// -------- Diner ordering --------
	v1.POST("/orders", s.OrderRateLimit(), s.SubmitOrder)

	restaurant := v1.Group("/restaurants/:slug", s.RestaurantContext())

	restaurant.GET("/products", s.ListProducts)

	// -------- Kitchen --------
	restaurant.GET("/orders/:id", s.GetOrder)
	restaurant.PATCH("/orders/:id/status", s.UpdateOrderStatus)

	// -------- Displays --------
	restaurant.GET("/board", s.GetBoard)
	restaurant.GET("/events", s.StreamEvents)

	// -------- Cashier --------
	restaurant.GET("/sessions", s.ListSessions)
	restaurant.GET("/tables/:table/session", s.GetTableSession)
	restaurant.GET("/sessions/:id", s.GetSession)
	restaurant.GET("/sessions/:id/split", s.SplitSession)
	restaurant.POST("/sessions/:id/payments", s.RecordPayment)
	restaurant.GET("/sessions/:id/ticket.pdf", s.SessionTicket)

	// -------- Reporting --------
	restaurant.GET("/sales", s.GetSalesReport)
	restaurant.GET("/audit", s.ListAuditLogs)
}
