package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promptvideos/orchestrator/internal/orchestrator/domain"
)

// SimulatedConfig holds nominal processing times for the simulated provider.
type SimulatedConfig struct {
	FreeSeconds    int
	PremiumSeconds int
}

// Simulated is a deterministic in-process provider used for development and
// tests. Submit always succeeds; an operation completes once wall-clock time
// passes the quality-derived estimate. No external calls, no cost.
type Simulated struct {
	config SimulatedConfig
	logger *slog.Logger

	mu         sync.RWMutex
	operations map[string]*simulatedOp

	now func() time.Time
}

type simulatedOp struct {
	startedAt   time.Time
	completesAt time.Time
	quality     domain.Quality
}

// NewSimulated creates a simulated provider with the given nominal delays.
func NewSimulated(config SimulatedConfig, logger *slog.Logger) *Simulated {
	return &Simulated{
		config:     config,
		logger:     logger,
		operations: make(map[string]*simulatedOp),
		now:        time.Now,
	}
}

func (s *Simulated) Submit(ctx context.Context, prompt string, quality domain.Quality, durationSeconds int) (*Submission, error) {
	estimate := s.config.FreeSeconds
	if quality == domain.QualityPremium {
		estimate = s.config.PremiumSeconds
	}

	handle := fmt.Sprintf("simulated/operations/%s", uuid.New().String())
	started := s.now()

	s.mu.Lock()
	s.operations[handle] = &simulatedOp{
		startedAt:   started,
		completesAt: started.Add(time.Duration(estimate) * time.Second),
		quality:     quality,
	}
	s.mu.Unlock()

	s.logger.Debug("Simulated generation started",
		slog.String("operation_handle", handle),
		slog.String("quality", string(quality)),
		slog.Int("estimated_seconds", estimate),
	)

	return &Submission{
		OperationHandle: handle,
		EstimatedSeconds: estimate,
	}, nil
}

func (s *Simulated) Poll(ctx context.Context, operationHandle string) (*Status, error) {
	s.mu.RLock()
	op, ok := s.operations[operationHandle]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.NewTerminalError(fmt.Errorf("unknown operation %q", operationHandle))
	}

	now := s.now()
	if !now.Before(op.completesAt) {
		return &Status{
			Done:      true,
			ResultURL: resultURL(operationHandle),
			Progress:  100,
		}, nil
	}

	// Informational progress, capped at 90 so an in-flight operation never
	// looks finished.
	total := op.completesAt.Sub(op.startedAt)
	pct := int(now.Sub(op.startedAt) * 100 / total)
	if pct > 90 {
		pct = 90
	}
	if pct < 0 {
		pct = 0
	}

	return &Status{Done: false, Progress: pct}, nil
}

func (s *Simulated) MaxDurationSeconds(quality domain.Quality) int {
	if quality == domain.QualityPremium {
		return maxDurationPremium
	}
	return maxDurationFree
}

func resultURL(operationHandle string) string {
	return fmt.Sprintf("https://mock-veo.com/videos/%s.mp4", uuid.NewSHA1(uuid.NameSpaceURL, []byte(operationHandle)).String())
}

var _ Provider = (*Simulated)(nil)
