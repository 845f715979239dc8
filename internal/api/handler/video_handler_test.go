package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvideos/orchestrator/internal/api/dto"
	"github.com/promptvideos/orchestrator/internal/orchestrator/dispatcher"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
	"github.com/promptvideos/orchestrator/internal/orchestrator/ledger"
	"github.com/promptvideos/orchestrator/internal/orchestrator/provider"
	"github.com/promptvideos/orchestrator/internal/orchestrator/store"
)

type stubProvider struct {
	submitErr error
}

func (p *stubProvider) Submit(ctx context.Context, prompt string, quality domain.Quality, durationSeconds int) (*provider.Submission, error) {
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return &provider.Submission{OperationHandle: "op-1", EstimatedSeconds: 120}, nil
}

func (p *stubProvider) Poll(ctx context.Context, operationHandle string) (*provider.Status, error) {
	return &provider.Status{}, nil
}

func (p *stubProvider) MaxDurationSeconds(quality domain.Quality) int {
	if quality == domain.QualityPremium {
		return 60
	}
	return 8
}

type handlerFixture struct {
	router *gin.Engine
	ledger *ledger.Memory
	store  *store.Memory
}

func newHandlerFixture(t *testing.T, prov provider.Provider) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.NewMemory(ledger.Costs{Free: 1, Premium: 3})
	st := store.NewMemory()

	disp := dispatcher.New(&dispatcher.Config{
		Provider: prov,
		Ledger:   led,
		Store:    st,
		Logger:   logger,
	})

	deps := &Dependencies{
		Logger:     logger,
		Dispatcher: disp,
		Store:      st,
	}

	r := gin.New()
	h := NewVideoHandler(deps)
	r.POST("/api/v1/videos", h.CreateVideo)
	r.GET("/api/v1/videos/:job_id", h.GetVideo)

	return &handlerFixture{router: r, ledger: led, store: st}
}

func (f *handlerFixture) post(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) get(t *testing.T, jobID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+jobID, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestVideoHandler_CreateVideo(t *testing.T) {
	t.Run("accepts a valid request", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})
		f.ledger.SetBalance("user-1", 5)

		w := f.post(t, dto.CreateVideoRequest{
			UserID:          "user-1",
			Prompt:          "a fox jumping over a fence",
			Quality:         "free",
			DurationSeconds: 5,
		})

		require.Equal(t, http.StatusAccepted, w.Code)

		var resp dto.VideoResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.JobID)
		assert.Equal(t, "user-1", resp.UserID)
		assert.Equal(t, "free", resp.Quality)
		assert.Equal(t, 4, f.ledger.Balance("user-1"))
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects invalid quality", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})
		f.ledger.SetBalance("user-1", 5)

		w := f.post(t, dto.CreateVideoRequest{
			UserID:          "user-1",
			Prompt:          "a fox",
			Quality:         "ultra",
			DurationSeconds: 5,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 5, f.ledger.Balance("user-1"))
	})

	t.Run("returns 402 when credits run out", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})
		f.ledger.SetBalance("user-1", 2)

		w := f.post(t, dto.CreateVideoRequest{
			UserID:          "user-1",
			Prompt:          "a fox",
			Quality:         "premium",
			DurationSeconds: 10,
		})

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, 2, f.ledger.Balance("user-1"))
	})

	t.Run("returns 503 when the provider is down", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{submitErr: fmt.Errorf("connect: refused")})
		f.ledger.SetBalance("user-1", 5)

		w := f.post(t, dto.CreateVideoRequest{
			UserID:          "user-1",
			Prompt:          "a fox",
			Quality:         "free",
			DurationSeconds: 5,
		})

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		// Reservation rolled back
		assert.Equal(t, 5, f.ledger.Balance("user-1"))
	})
}

func TestVideoHandler_GetVideo(t *testing.T) {
	t.Run("returns an existing job", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})
		f.ledger.SetBalance("user-1", 5)

		created := f.post(t, dto.CreateVideoRequest{
			UserID:          "user-1",
			Prompt:          "a fox",
			Quality:         "free",
			DurationSeconds: 5,
		})
		require.Equal(t, http.StatusAccepted, created.Code)

		var createdResp dto.VideoResponse
		require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createdResp))

		w := f.get(t, createdResp.JobID)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.VideoResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, createdResp.JobID, resp.JobID)
		assert.Equal(t, "a fox", resp.Prompt)
		assert.LessOrEqual(t, resp.Progress, 90)
	})

	t.Run("returns 400 for a non-uuid id", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})

		w := f.get(t, "not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns 404 for an unknown job", func(t *testing.T) {
		f := newHandlerFixture(t, &stubProvider{})

		w := f.get(t, "1b671a64-40d5-491e-99b0-da01ff1f3341")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
