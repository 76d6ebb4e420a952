package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceMesh/internal/domain/models"
	domrepo "PriceMesh/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, sub *models.Submission) error
}

// RealtimePipeline sits between the feedgate stream and the oracle intake.
// It shape-checks frames and throttles per reporter. Oracle validation
// rejections are deterministic and resubmission with the same inputs cannot
// succeed, so nothing is retried here; audit forwards that fail after
// acceptance are retried by the processor's own flusher.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-reporter last accepted time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max submissions per second per reporter.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20, // default throttle per reporter
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process shape-checks, throttles, and forwards a submission downstream.
func (p *RealtimePipeline) Process(ctx context.Context, sub *models.Submission) error {
	start := time.Now()
	if err := validateSubmission(sub); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(sub.Reporter, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, sub); err != nil {
		p.metrics.RecordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// validateSubmission is a transport shape check only; oracle rules run in
// the engine.
func validateSubmission(sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("submission nil")
	}
	if sub.Reporter == "" {
		return fmt.Errorf("reporter empty")
	}
	if sub.Asset == "" {
		return fmt.Errorf("asset empty")
	}
	if sub.Price == 0 {
		return fmt.Errorf("price zero")
	}
	return nil
}

func (p *RealtimePipeline) allow(reporter string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[reporter]
	if last.IsZero() {
		p.lastSeen[reporter] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[reporter] = now
	return true
}
