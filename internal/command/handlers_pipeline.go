package command

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shaharia-lab/acp-runtime/internal/pipeline"
)

// pipelineDefine handles pipeline_define.
func (s *Server) pipelineDefine(c *gin.Context) {
	var req pipelineDefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	def := pipeline.Definition{ID: uuid.NewString(), Name: req.Name, Stages: req.Stages}
	if err := s.pipe.Define(def); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, pipelineDefineResponse{PipelineID: def.ID})
}

// pipelineExecute handles pipeline_execute.
func (s *Server) pipelineExecute(c *gin.Context) {
	pipelineID := c.Param("pipeline_id")

	var req pipelineExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	execID, err := s.pipe.Start(pipelineID, req.InitialInput)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, pipelineExecuteResponse{ExecutionID: execID})
}

// pipelineGetStatus handles pipeline_get_status.
func (s *Server) pipelineGetStatus(c *gin.Context) {
	exec, err := s.pipe.GetStatus(c.Param("execution_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// pipelineCancel handles pipeline_cancel.
func (s *Server) pipelineCancel(c *gin.Context) {
	if err := s.pipe.Cancel(c.Param("execution_id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pipelineList handles pipeline_list.
func (s *Server) pipelineList(c *gin.Context) {
	c.JSON(http.StatusOK, s.pipe.Definitions())
}

// pipelineListActive handles pipeline_list_active.
func (s *Server) pipelineListActive(c *gin.Context) {
	active := s.pipe.ListActive()
	ids := make([]string, len(active))
	for i, e := range active {
		ids[i] = e.ExecutionID
	}
	c.JSON(http.StatusOK, pipelineListActiveResponse{ExecutionIDs: ids})
}
