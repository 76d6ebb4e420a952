package usecase

import (
	"context"

	"PriceMesh/internal/domain/models"
	drepo "PriceMesh/internal/domain/repository"
	mid "PriceMesh/internal/middleware"
)

// SubmissionCollector drains the feedgate stream into the oracle intake.
type SubmissionCollector struct {
	stream  drepo.SubmissionStream
	intake  *SubmissionIntake
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewSubmissionCollector creates a new SubmissionCollector instance.
func NewSubmissionCollector(stream drepo.SubmissionStream, intake *SubmissionIntake, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *SubmissionCollector {
	return &SubmissionCollector{stream: stream, intake: intake, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the feedgate stream is connected.
func (c *SubmissionCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *SubmissionCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// run reads the stream until it fails, then reconnects and reads again.
// Each reconnect must re-acquire fresh channels: the stream's read goroutine
// closes its channels when the connection drops.
func (c *SubmissionCollector) run(ctx context.Context) {
	for {
		subCh, errCh := c.stream.Read(ctx)
		if !c.consume(ctx, subCh, errCh) {
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			// Reconnect paces itself with the configured delay.
			if err := c.stream.Reconnect(ctx); err != nil {
				c.metrics.RecordError("reconnect")
				continue
			}
			break
		}
	}
}

// consume drains one set of stream channels. Returns true when the stream
// failed and a reconnect should follow, false on context cancellation.
func (c *SubmissionCollector) consume(ctx context.Context, subCh <-chan *models.Submission, errCh <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errCh:
			if !ok {
				return true
			}
			if err != nil {
				c.metrics.RecordError("stream")
				return true
			}
		case sub, ok := <-subCh:
			if !ok {
				return true
			}
			if sub == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, sub)
			} else {
				_ = c.intake.Process(ctx, sub)
			}
		}
	}
}

// Intake returns the underlying intake for lifecycle management.
func (c *SubmissionCollector) Intake() *SubmissionIntake { return c.intake }

// Shutdown closes the stream.
func (c *SubmissionCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
