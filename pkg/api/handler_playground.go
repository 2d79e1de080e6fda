package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finbourne-labs/fathom/pkg/models"
	"github.com/finbourne-labs/fathom/pkg/runner"
)

func (s *Server) playgroundStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, []gin.H{
		{
			"agent_id":    AgentID,
			"name":        "Fathom",
			"description": "LUSID data-quality agent",
			"model": gin.H{
				"name":     s.model,
				"model":    s.model,
				"provider": s.model,
			},
			"storage": s.store != nil,
		},
	})
}

// createRun starts one turn and streams RunEvents back as newline-
// delimited JSON, flushed per event.
func (s *Server) createRun(c *gin.Context) {
	agentID := c.Param("agent_id")
	if agentID != AgentID {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent: " + agentID})
		return
	}

	message := c.PostForm("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	sessionID := c.PostForm("session_id")

	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	encoder := json.NewEncoder(c.Writer)

	s.runner.Run(c.Request.Context(), runner.Request{
		AgentID:      agentID,
		SessionID:    sessionID,
		Message:      message,
		SystemPrompt: s.systemPrompt,
	}, func(event models.RunEvent) {
		if err := encoder.Encode(event); err != nil {
			s.logger.Warn("writing run event failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}
