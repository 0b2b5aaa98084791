package command

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestLogger mirrors the teacher's logging middleware shape, adapted to
// this module's zap-based logging package.
func requestLogger(log interface {
	Info(string, ...zap.Field)
}) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request completed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func recovery(log interface {
	Error(string, ...zap.Field)
}) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", zap.Any("panic", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
					Tag: "internal_error", Message: "an internal error occurred",
				})
			}
		}()
		c.Next()
	}
}

func (s *Server) buildRouter() *gin.Engine {
	if s.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(requestLogger(s.log), recovery(s.log))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))
	r.GET("/events", func(c *gin.Context) { s.hub.serveWS(c.Writer, c.Request) })
	r.GET("/.well-known/agent.json", s.wellKnownAgentCard)

	v1 := r.Group("/api/v1")

	executors := v1.Group("/executors")
	{
		executors.POST("", s.executorStart)
		executors.POST("/:session_id/execute", s.executorExecute)
		executors.POST("/:session_id/permission", s.executorSubmitPermission)
		executors.POST("/:session_id/stop", s.executorStop)
		executors.GET("/:session_id/state", s.executorGetState)
		executors.GET("/:session_id/running", s.executorIsRunning)
	}

	reg := v1.Group("/registry")
	{
		reg.POST("/agents", s.registryRegister)
		reg.POST("/discover", s.registryDiscover)
		reg.GET("/agents", s.registryList)
		reg.GET("/agents/:id", s.registryGet)
	}

	pipelines := v1.Group("/pipelines")
	{
		pipelines.POST("", s.pipelineDefine)
		pipelines.GET("", s.pipelineList)
		pipelines.GET("/executions/active", s.pipelineListActive)
		pipelines.POST("/:pipeline_id/execute", s.pipelineExecute)
		pipelines.GET("/executions/:execution_id", s.pipelineGetStatus)
		pipelines.POST("/executions/:execution_id/cancel", s.pipelineCancel)
	}

	return r
}
