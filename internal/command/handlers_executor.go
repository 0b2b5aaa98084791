package command

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// executorStart handles executor_start: creates a fresh Executor, spawns
// its CLI child, and registers it under the session_id the child resolves
// to (spec.md §4.2 startup sequence).
func (s *Server) executorStart(c *gin.Context) {
	var req executorStartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	m := s.newManagedExecutor()
	sid, err := m.exec.Start(c.Request.Context(), req.WorkingDir, req.AllowedTools, req.SessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	m.setSessionID(sid)
	s.register(sid, m)

	c.JSON(http.StatusOK, executorStartResponse{SessionID: sid})
}

func (s *Server) requireExecutor(c *gin.Context) (*managedExecutor, bool) {
	sessionID := c.Param("session_id")
	m, ok := s.lookup(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, apiError{Tag: "not_found", Message: "no executor for that session_id"})
		return nil, false
	}
	return m, true
}

// executorExecute handles executor_execute.
func (s *Server) executorExecute(c *gin.Context) {
	m, ok := s.requireExecutor(c)
	if !ok {
		return
	}

	var req executorExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Prompt == "" {
		badRequest(c, "prompt must be non-empty")
		return
	}

	output, err := m.exec.Execute(c.Request.Context(), req.Prompt)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, executorExecuteResponse{Output: output})
}

// executorSubmitPermission handles executor_submit_permission, and records
// the decision against the session's policy for the domain-stack
// permission-decisions-by-policy metric.
func (s *Server) executorSubmitPermission(c *gin.Context) {
	m, ok := s.requireExecutor(c)
	if !ok {
		return
	}

	var req executorSubmitPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := m.exec.SubmitPermission(req.RequestID, req.Allow, req.Always); err != nil {
		respondErr(c, err)
		return
	}

	decision := "deny"
	if req.Allow {
		decision = "allow"
	}
	s.metrics.recordPermissionDecision(string(m.policy), decision)

	c.Status(http.StatusNoContent)
}

// executorStop handles executor_stop.
func (s *Server) executorStop(c *gin.Context) {
	m, ok := s.requireExecutor(c)
	if !ok {
		return
	}
	if err := m.exec.Stop(); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// executorGetState handles executor_get_state.
func (s *Server) executorGetState(c *gin.Context) {
	m, ok := s.requireExecutor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.exec.GetState())
}

// executorIsRunning handles executor_is_running.
func (s *Server) executorIsRunning(c *gin.Context) {
	m, ok := s.requireExecutor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, executorIsRunningResponse{Running: m.exec.IsRunning()})
}
