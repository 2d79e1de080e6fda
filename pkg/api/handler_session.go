package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finbourne-labs/fathom/pkg/models"
)

func (s *Server) listSessions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []any{}})
		return
	}

	// Optional days/limit query params; the store applies its defaults
	// (14 days, 50 sessions) when these are absent.
	var window time.Duration
	if days, err := strconv.Atoi(c.Query("days")); err == nil && days > 0 {
		window = time.Duration(days) * 24 * time.Hour
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	sessions, err := s.store.ListSessions(c.Request.Context(), c.Param("agent_id"), window, limit)
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) deleteSession(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}

	sessionID := c.Param("session_id")
	if err := s.store.Delete(c.Request.Context(), sessionID); err != nil {
		s.logger.Error("deleting session failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}
