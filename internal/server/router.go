// Package server mounts the classifier, crawler and dashboard route groups
// on one gin engine.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/dashboard"
	"github.com/thep200/content-radar/internal/respond"
	"github.com/thep200/content-radar/pkg/log"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// Deps holds what the router serves. A nil group is not mounted.
type Deps struct {
	Logger   log.Logger
	Gatherer prometheus.Gatherer

	Classifier Classifier
	Crawler    Crawler
	Dashboard  *dashboard.Handler

	// Checks run on /healthz, keyed by name.
	Checks map[string]Pinger
}

// Classifier is implemented by *classifier.Service.
type Classifier interface {
	Classify(ctx context.Context, kind string, target classifier.Target, text string) (interface{}, error)
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	r.GET("/healthz", healthz(d.Checks))
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if d.Classifier != nil {
		h := &classifyHandler{svc: d.Classifier, logger: d.Logger}
		r.POST("/classify/:kind", h.classify)
	}
	if d.Crawler != nil {
		h := &crawlerHandler{api: d.Crawler, logger: d.Logger}
		h.register(r.Group("/crawler"))
	}
	if d.Dashboard != nil {
		d.Dashboard.RegisterRoutes(r)
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Detail(c, http.StatusNotFound, "route %s %s not found", c.Request.Method, c.Request.URL.Path)
	})
	return r
}

func healthz(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		body := gin.H{"status": "ok", "checks": results}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}

func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		latency := time.Since(started).Round(time.Millisecond)
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		default:
			logger.Info(ctx, "%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		}
	}
}
