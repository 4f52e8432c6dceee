package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clashsub/backend/domain"
	"clashsub/backend/repository"
	"clashsub/backend/service/applog"
	"clashsub/backend/service/process"
)

// ClashService 路由依赖的编排层操作。
type ClashService interface {
	UpdateSubscription(ctx context.Context) domain.UpdateResult
	Start(ctx context.Context) domain.ActionResult
	Stop(ctx context.Context) domain.ActionResult
	SelectProxy(ctx context.Context, name string) domain.SelectResult
	CurrentProxy(ctx context.Context) string
	ListNodes(ctx context.Context) []domain.NodeInfo
	Status(ctx context.Context) domain.Status
	Logs(since int64) process.LogChunk
}

// AppLog 应用日志读取。
type AppLog interface {
	Since(since int64) applog.Snapshot
}

// Deps 路由依赖；除 Clash 外均可为 nil。
type Deps struct {
	Clash    ClashService
	Settings repository.SettingsRepository
	AppLog   AppLog
	Metrics  http.Handler
}

type Router struct {
	clash    ClashService
	settings repository.SettingsRepository
	appLog   AppLog
	metrics  http.Handler
}

// NewRouter 构建 HTTP 路由。
func NewRouter(deps Deps) *gin.Engine {
	r := &Router{clash: deps.Clash, settings: deps.Settings, appLog: deps.AppLog, metrics: deps.Metrics}
	engine := gin.New()
	engine.Use(gin.Recovery())
	r.register(engine)
	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (r *Router) register(engine *gin.Engine) {
	engine.Use(corsMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics))
	}

	clash := engine.Group("/clash")
	{
		clash.GET("/status", r.getStatus)
		clash.GET("/nodes", r.listNodes)
		clash.GET("/current", r.getCurrent)
		clash.GET("/logs", r.getLogs)
		clash.POST("/update", r.updateSubscription)
		clash.POST("/start", r.start)
		clash.POST("/stop", r.stop)
		clash.PUT("/select", r.selectProxy)
	}

	if r.appLog != nil {
		engine.GET("/app/logs", r.getAppLogs)
	}

	if r.settings != nil {
		settings := engine.Group("/settings")
		{
			settings.GET("", r.getSettings)
			settings.PUT(":key", r.putSetting)
		}
	}
}

func (r *Router) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.clash.Status(c.Request.Context()))
}

func (r *Router) listNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": r.clash.ListNodes(c.Request.Context())})
}

func (r *Router) getCurrent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"current": r.clash.CurrentProxy(c.Request.Context())})
}

func (r *Router) getLogs(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r.clash.Logs(since))
}

func (r *Router) getAppLogs(c *gin.Context) {
	since, ok := parseSince(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r.appLog.Since(since))
}

func parseSince(c *gin.Context) (int64, bool) {
	raw := c.Query("since")
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		badRequest(c, errors.New("invalid 'since' parameter: must be a non-negative integer"))
		return 0, false
	}
	return v, true
}

func (r *Router) updateSubscription(c *gin.Context) {
	res := r.clash.UpdateSubscription(c.Request.Context())
	c.JSON(resultStatus(res.Success), res)
}

func (r *Router) start(c *gin.Context) {
	res := r.clash.Start(c.Request.Context())
	c.JSON(resultStatus(res.Success), res)
}

func (r *Router) stop(c *gin.Context) {
	res := r.clash.Stop(c.Request.Context())
	c.JSON(resultStatus(res.Success), res)
}

type selectRequest struct {
	Name string `json:"name"`
}

func (r *Router) selectProxy(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(c, errors.New("name is required"))
		return
	}
	res := r.clash.SelectProxy(c.Request.Context(), req.Name)
	c.JSON(resultStatus(res.Success), res)
}

func (r *Router) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, r.settings.All(c.Request.Context()))
}

type settingRequest struct {
	Value string `json:"value"`
}

func (r *Router) putSetting(c *gin.Context) {
	key := c.Param("key")
	if !knownSetting(key) {
		badRequest(c, errors.New("unknown setting: "+key))
		return
	}
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := r.settings.Set(c.Request.Context(), key, req.Value); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

func knownSetting(key string) bool {
	for _, k := range repository.KnownSettings {
		if k == key {
			return true
		}
	}
	return false
}

func resultStatus(success bool) int {
	if success {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func handleError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrInvalidData) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
