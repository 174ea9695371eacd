package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/transfer-ledger/internal/config"
	"go.uber.org/zap"
)

// NewRouter builds the engine. /metrics is exempt from rate limiting.
func NewRouter(transfers Transferer, queries Querier, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("")
	if rl.RPS > 0 {
		api.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	}
	RegisterHandlers(api, transfers, queries, log)
	return r
}
