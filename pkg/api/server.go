// Package api exposes the HTTP surface: playground run streaming,
// session management, workflow task queries, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finbourne-labs/fathom/pkg/database"
	"github.com/finbourne-labs/fathom/pkg/runner"
	"github.com/finbourne-labs/fathom/pkg/transcript"
	"github.com/finbourne-labs/fathom/pkg/version"
	"github.com/finbourne-labs/fathom/pkg/workflow"
)

// AgentID is the single fixed agent exposed by the playground surface.
const AgentID = "fathom-agent"

// RunStarter executes one turn, emitting events to the callback. The
// runner satisfies this.
type RunStarter interface {
	Run(ctx context.Context, req runner.Request, emit runner.EmitFunc)
}

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	runner       RunStarter
	store        transcript.Store
	tasks        workflow.Client
	db           *database.Client // nil when the session index is disabled
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// Options configures a Server. Tasks and DB may be nil; their routes then
// report unavailability.
type Options struct {
	Runner       RunStarter
	Store        transcript.Store
	Tasks        workflow.Client
	DB           *database.Client
	Model        string
	SystemPrompt string
	Logger       *slog.Logger
}

// NewServer builds the server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		runner:       opts.Runner,
		store:        opts.Store,
		tasks:        opts.Tasks,
		db:           opts.DB,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		logger:       opts.Logger,
	}
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	playground := router.Group("/v1/playground")
	{
		playground.GET("/status", s.playgroundStatus)
		playground.GET("/agents", s.listAgents)
		playground.POST("/agents/:agent_id/runs", s.createRun)
		playground.GET("/agents/:agent_id/sessions", s.listSessions)
		playground.DELETE("/agents/:agent_id/sessions/:session_id", s.deleteSession)
	}

	fathom := router.Group("/fathom")
	{
		fathom.GET("/tasks", s.listTasks)
		fathom.GET("/tasks/:task_id", s.getTask)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.GitCommit})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.GitCommit,
		"database": dbHealth,
	})
}
