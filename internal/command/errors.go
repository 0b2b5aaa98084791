package command

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaharia-lab/acp-runtime/internal/executor"
	"github.com/shaharia-lab/acp-runtime/internal/pipeline"
	"github.com/shaharia-lab/acp-runtime/internal/registry"
)

// errTag classifies err into the machine-readable tag spec.md §7's error
// taxonomy promises every command result, and the HTTP status it maps to.
func errTag(err error) (status int, tag string) {
	switch {
	case errors.Is(err, executor.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, executor.ErrNotRunning):
		return http.StatusConflict, "not_running"
	case errors.Is(err, executor.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, executor.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, executor.ErrInitializationTimeout):
		return http.StatusGatewayTimeout, "initialization_timeout"
	case errors.Is(err, executor.ErrTaskTimeout):
		return http.StatusGatewayTimeout, "task_timeout"
	case errors.Is(err, executor.ErrPermissionNotPending):
		return http.StatusNotFound, "permission_not_pending"
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, registry.ErrProtocolVersionImmutable):
		return http.StatusConflict, "protocol_version_immutable"
	case errors.Is(err, pipeline.ErrNoStages):
		return http.StatusBadRequest, "no_stages"
	case errors.Is(err, pipeline.ErrPipelineNotFound):
		return http.StatusNotFound, "pipeline_not_found"
	case errors.Is(err, pipeline.ErrExecutionNotFound):
		return http.StatusNotFound, "execution_not_found"
	case errors.Is(err, pipeline.ErrUnknownCallable):
		return http.StatusBadRequest, "unknown_callable"
	case errors.Is(err, pipeline.ErrUnknownAgent):
		return http.StatusBadRequest, "unknown_agent"
	case errors.Is(err, pipeline.ErrUnresolvedRef):
		return http.StatusBadRequest, "unresolved_ref"
	default:
		var taskErr *executor.TaskError
		if errors.As(err, &taskErr) {
			return http.StatusUnprocessableEntity, "task_failed"
		}
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondErr(c *gin.Context, err error) {
	status, tag := errTag(err)
	c.JSON(status, apiError{Tag: tag, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, apiError{Tag: "invalid_request", Message: message})
}
