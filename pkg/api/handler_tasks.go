package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/finbourne-labs/fathom/pkg/workflow"
)

// listTasks fetches all tasks, filters locally, and returns them grouped
// by ultimate parent. Server-side filters on the upstream API are avoided
// for stability.
func (s *Server) listTasks(c *gin.Context) {
	if s.tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task API not configured"})
		return
	}

	filter := workflow.Filter{
		SearchQuery:    c.Query("searchQuery"),
		States:         splitParam(c.Query("states")),
		CorrelationIDs: splitParam(c.Query("correlationIds")),
	}

	resp, err := s.tasks.ListTasks(c.Request.Context())
	if err != nil {
		s.logger.Error("fetching tasks failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch tasks"})
		return
	}

	filtered := workflow.FilterTasks(resp.Values, filter)
	groups := workflow.GroupByUltimateParent(filtered)

	c.JSON(http.StatusOK, gin.H{
		"taskGroups":  groups,
		"totalTasks":  len(filtered),
		"totalGroups": len(groups),
	})
}

func (s *Server) getTask(c *gin.Context) {
	if s.tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task API not configured"})
		return
	}

	taskID := c.Param("task_id")
	task, err := s.tasks.GetTask(c.Request.Context(), taskID)
	if err != nil {
		s.logger.Error("fetching task failed", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch task"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
