package dto

// CreateVideoRequest is the body of POST /api/v1/videos
type CreateVideoRequest struct {
	UserID          string `json:"user_id" binding:"required"`
	Prompt          string `json:"prompt" binding:"required"`
	Quality         string `json:"quality" binding:"required"`
	DurationSeconds int    `json:"duration_seconds" binding:"required"`
}

// VideoResponse is the representation of a video job returned by the API
type VideoResponse struct {
	JobID           string `json:"job_id"`
	UserID          string `json:"user_id"`
	Prompt          string `json:"prompt"`
	Quality         string `json:"quality"`
	DurationSeconds int    `json:"duration_seconds"`
	State           string `json:"state"`
	Progress        int    `json:"progress"`
	ResultURL       string `json:"result_url,omitempty"`
	Error           string `json:"error,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}
