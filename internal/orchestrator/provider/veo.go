package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// Veo model limits per tier. The free tier runs on Veo 2 (8s max, no audio),
// premium on Veo 3 (60s max, with audio).
const (
	modelFree    = "veo-2.0-generate-001"
	modelPremium = "veo-3.0-generate-001"

	maxDurationFree    = 8
	maxDurationPremium = 60
	minDuration        = 5

	// Nominal processing-time estimates, matching the tiers' observed
	// asymmetry. The API supplies no estimate of its own.
	estimateFreeSeconds    = 120
	estimatePremiumSeconds = 300
)

// VeoConfig holds connection settings for the Vertex AI Veo API.
type VeoConfig struct {
	BaseURL        string
	ProjectID      string
	Location       string
	APIToken       string
	StorageURI     string
	RequestTimeout time.Duration
}

// Veo calls the Vertex AI long-running prediction API. Submission is a single
// creation call with no retries: the API is billed per call, so a duplicate
// submission is a duplicate charge. Poll errors are transient; the poller
// retries on its next cycle.
type Veo struct {
	config VeoConfig
	client *http.Client
	logger *slog.Logger
}

// NewVeo creates a remote Veo provider.
func NewVeo(config VeoConfig, logger *slog.Logger) *Veo {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Veo{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type veoSubmitRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoInstance struct {
	Prompt string `json:"prompt"`
}

type veoParameters struct {
	DurationSeconds  int    `json:"durationSeconds"`
	AspectRatio      string `json:"aspectRatio"`
	EnhancePrompt    bool   `json:"enhancePrompt"`
	SampleCount      int    `json:"sampleCount"`
	PersonGeneration string `json:"personGeneration"`
	StorageURI       string `json:"storageUri,omitempty"`
	GenerateAudio    bool   `json:"generateAudio,omitempty"`
}

type veoSubmitResponse struct {
	Name string `json:"name"`
}

type veoPollResponse struct {
	Done  bool `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Videos []struct {
			GcsURI     string `json:"gcsUri"`
			StorageURI string `json:"storageUri"`
		} `json:"videos"`
	} `json:"response"`
}

func (v *Veo) Submit(ctx context.Context, prompt string, quality domain.Quality, durationSeconds int) (*Submission, error) {
	model := modelFree
	maxDuration := maxDurationFree
	estimate := estimateFreeSeconds
	if quality == domain.QualityPremium {
		model = modelPremium
		maxDuration = maxDurationPremium
		estimate = estimatePremiumSeconds
	}

	if durationSeconds < minDuration {
		durationSeconds = minDuration
	}
	if durationSeconds > maxDuration {
		durationSeconds = maxDuration
	}

	reqBody := veoSubmitRequest{
		Instances: []veoInstance{{Prompt: prompt}},
		Parameters: veoParameters{
			DurationSeconds:  durationSeconds,
			AspectRatio:      "16:9",
			EnhancePrompt:    true,
			SampleCount:      1,
			PersonGeneration: "allow_adult",
			StorageURI:       v.config.StorageURI,
			GenerateAudio:    quality == domain.QualityPremium,
		},
	}

	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:predictLongRunning",
		v.config.BaseURL, v.config.ProjectID, v.config.Location, model)

	var resp veoSubmitResponse
	if err := v.post(ctx, url, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("veo submission failed: %w", err)
	}

	if resp.Name == "" {
		return nil, fmt.Errorf("veo submission response has no operation name")
	}

	v.logger.Info("Veo generation operation started",
		slog.String("operation_name", resp.Name),
		slog.String("model", model),
		slog.Int("duration_seconds", durationSeconds),
	)

	return &Submission{
		OperationHandle:  resp.Name,
		EstimatedSeconds: estimate,
	}, nil
}

func (v *Veo) Poll(ctx context.Context, operationHandle string) (*Status, error) {
	// The fetch endpoint is model-scoped; recover the model from the
	// operation name.
	model := modelFree
	if strings.Contains(operationHandle, "veo-3.0") {
		model = modelPremium
	}

	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:fetchPredictOperation",
		v.config.BaseURL, v.config.ProjectID, v.config.Location, model)

	var resp veoPollResponse
	if err := v.post(ctx, url, map[string]string{"operationName": operationHandle}, &resp); err != nil {
		// Network and server errors are transient by contract.
		return nil, fmt.Errorf("veo status fetch failed: %w", err)
	}

	if !resp.Done {
		return &Status{Done: false}, nil
	}

	if resp.Error != nil {
		return nil, domain.NewTerminalError(fmt.Errorf("veo operation failed: %s", resp.Error.Message))
	}

	status := &Status{Done: true, Progress: 100}
	if resp.Response != nil && len(resp.Response.Videos) > 0 {
		video := resp.Response.Videos[0]
		status.ResultURL = video.GcsURI
		if status.ResultURL == "" {
			status.ResultURL = video.StorageURI
		}
	}

	if status.ResultURL == "" {
		v.logger.Warn("Veo operation done without a result URI",
			slog.String("operation_name", operationHandle),
		)
	}

	return status, nil
}

func (v *Veo) MaxDurationSeconds(quality domain.Quality) int {
	if quality == domain.QualityPremium {
		return maxDurationPremium
	}
	return maxDurationFree
}

// post sends a JSON request and decodes a JSON response. Any non-2xx status
// is an error carrying a response excerpt.
func (v *Veo) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.config.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(data)
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, excerpt)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

var _ Provider = (*Veo)(nil)
