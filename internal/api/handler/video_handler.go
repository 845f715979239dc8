package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/promptvideos/orchestrator/internal/api/dto"
	"github.com/promptvideos/orchestrator/internal/orchestrator/dispatcher"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// CreateVideo handles POST /api/v1/videos
// Reserves credits, submits the prompt to the provider, and hands the job off
func (h *VideoHandler) CreateVideo(c *gin.Context) {
	var req dto.CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	jobID, err := h.dispatcher.Submit(c.Request.Context(), dispatcher.SubmitRequest{
		UserID:          req.UserID,
		Prompt:          req.Prompt,
		Quality:         domain.Quality(req.Quality),
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to load created job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load created job",
		})
		return
	}

	c.JSON(http.StatusAccepted, toVideoResponse(job, time.Now()))
}

// GetVideo handles GET /api/v1/videos/:job_id
// Returns the current state of a video job with a progress estimate
func (h *VideoHandler) GetVideo(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toVideoResponse(job, time.Now()))
}

func (h *VideoHandler) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "Insufficient credits",
		})
	case errors.Is(err, domain.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Video provider is unavailable, credits were not charged",
		})
	default:
		h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job",
		})
	}
}

func toVideoResponse(job *domain.Job, now time.Time) dto.VideoResponse {
	return dto.VideoResponse{
		JobID:           job.ID,
		UserID:          job.UserID,
		Prompt:          job.Prompt,
		Quality:         string(job.Quality),
		DurationSeconds: job.DurationSeconds,
		State:           string(job.State),
		Progress:        job.ProgressEstimate(now),
		ResultURL:       job.ResultURL,
		Error:           job.ErrorMessage,
		CreatedAt:       job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
