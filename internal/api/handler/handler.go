package handler

import (
	"log/slog"

	"github.com/promptvideos/orchestrator/internal/metrics"
	"github.com/promptvideos/orchestrator/internal/orchestrator/dispatcher"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
	"github.com/promptvideos/orchestrator/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Dispatcher *dispatcher.Dispatcher
	Store      store.Store
	DBClient   *postgresql.Client // nil with the in-memory backend
	Metrics    *metrics.Metrics
}

// VideoHandler handles video-generation HTTP requests
type VideoHandler struct {
	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher
	store      store.Store
}

// NewVideoHandler creates a new VideoHandler instance
func NewVideoHandler(deps *Dependencies) *VideoHandler {
	return &VideoHandler{
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
	}
}
