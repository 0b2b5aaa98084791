package command

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaharia-lab/acp-runtime/internal/registry"
)

// registryRegister handles registry_register.
func (s *Server) registryRegister(c *gin.Context) {
	var req registryRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := s.reg.Register(req.AgentCard)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, registryRegisterResponse{ID: id})
}

// registryDiscover handles registry_discover.
func (s *Server) registryDiscover(c *gin.Context) {
	var q registry.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.reg.Discover(q))
}

// registryList handles registry_list.
func (s *Server) registryList(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.List())
}

// registryGet handles registry_get.
func (s *Server) registryGet(c *gin.Context) {
	id := c.Param("id")
	card, err := s.reg.Get(id)
	if err != nil {
		c.JSON(http.StatusOK, registryGetResponse{})
		return
	}
	c.JSON(http.StatusOK, registryGetResponse{Card: &card})
}

// wellKnownAgentCard serves the registered card verbatim, matching the
// persisted form spec.md §6 describes for when HTTP transport is added.
func (s *Server) wellKnownAgentCard(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		badRequest(c, "id query parameter is required")
		return
	}
	raw, err := s.reg.ServeAgentCard(id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
