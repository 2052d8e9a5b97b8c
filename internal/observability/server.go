package observability

import (
	"net/http"
	"time"

	"github.com/danmuck/rosctl/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusFunc reports the current in-flight work for /status.
type StatusFunc func() any

// NewStatusRouter serves /health, /metrics and /status for watch mode. With a
// non-nil validator, /metrics and /status need a bearer token; /health never
// does.
func NewStatusRouter(status StatusFunc, validator auth.Validator) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.With().Str("component", "status").Logger()))
	r.Use(RequestMetricsMiddleware())
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
		})
	})
	guarded := r.Group("/")
	if validator != nil {
		guarded.Use(RequireToken(validator))
	}
	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))
	guarded.GET("/status", func(c *gin.Context) {
		var body any = []any{}
		if status != nil {
			body = status()
		}
		c.JSON(http.StatusOK, gin.H{"inflight": body})
	})
	return r
}
