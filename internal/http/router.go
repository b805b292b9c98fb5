package http

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jingrm/jing-token-client/internal/metrics"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Registry backs GET /metrics; nil disables the endpoint.
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics
	// UI, when set, is served for every path outside the API.
	UI fs.FS
	// Limiter, when set, throttles /api requests.
	Limiter *rate.Limiter
}

func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loopbackOnly())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}))
	}
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware())
	}

	r.GET("/healthz", h.Health)
	if cfg.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Registry)))
	}

	api := r.Group("/api")
	if cfg.Limiter != nil {
		api.Use(rateLimit(cfg.Limiter))
	}
	{
		api.GET("/session", h.GetSession)
		api.GET("/token", h.GetToken)
		api.GET("/pending", h.GetPending)
		api.POST("/pending/abandon", h.AbandonPending)

		api.POST("/connect", h.Connect)
		api.POST("/network/switch", h.SwitchNetwork)
		api.POST("/refresh", h.Refresh)

		api.POST("/transfer", h.Transfer)
		api.POST("/buy", h.Buy)
		api.GET("/buy/quote", h.QuoteBuy)
		api.POST("/mint", h.Mint)
		api.POST("/price", h.SetPrice)
		api.POST("/withdraw", h.Withdraw)
		api.POST("/import", h.Import)

		api.GET("/wallet/accounts", h.WalletAccounts)
		api.POST("/wallet/account", h.SelectAccount)
		api.POST("/wallet/lock", h.LockWallet)
	}

	if cfg.UI != nil {
		r.NoRoute(uiHandler(cfg.UI))
	} else {
		r.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, errorRes{Error: "not found"})
		})
	}
	return r
}
