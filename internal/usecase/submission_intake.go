package usecase

import (
	"context"

	"PriceMesh/internal/domain/models"
	drepo "PriceMesh/internal/domain/repository"
	"PriceMesh/internal/oracle"
	xlogger "PriceMesh/pkg/logger"
)

// SubmissionIntake runs a submission through the oracle engine and, on
// acceptance, hands the resulting feed entry to the processor. Every ingest
// lane (HTTP, feedgate stream, Kafka topic) converges here so validation and
// audit behavior are identical regardless of transport.
type SubmissionIntake struct {
	engine  *oracle.Engine
	proc    *SubmissionProcessor
	metrics drepo.Metrics
	lane    string
	log     *xlogger.Logger
}

// NewSubmissionIntake creates an intake for one ingest lane.
func NewSubmissionIntake(engine *oracle.Engine, proc *SubmissionProcessor, metrics drepo.Metrics, lane string, log *xlogger.Logger) *SubmissionIntake {
	return &SubmissionIntake{engine: engine, proc: proc, metrics: metrics, lane: lane, log: log}
}

// WithLane returns a copy of the intake labeled for another ingest lane.
func (i *SubmissionIntake) WithLane(lane string) *SubmissionIntake {
	clone := *i
	clone.lane = lane
	return &clone
}

// Process validates and accepts a submission. Validation rejections are
// returned to the caller (the submission must be corrected and resubmitted);
// downstream audit failures do not undo the accepted state.
func (i *SubmissionIntake) Process(ctx context.Context, sub *models.Submission) error {
	entry, err := i.engine.Submit(sub)
	if err != nil {
		i.metrics.RecordSubmissionRejected(sub.Asset, oracle.ErrorCode(err))
		if i.log != nil {
			i.log.Warn("submission rejected",
				xlogger.String("lane", i.lane),
				xlogger.String("asset", sub.Asset),
				xlogger.String("reporter", sub.Reporter),
				xlogger.String("reason", oracle.ErrorCode(err)))
		}
		return err
	}

	i.metrics.RecordSubmissionAccepted(entry.Asset, i.lane)
	if h, ok := i.engine.History(entry.Asset); ok {
		i.metrics.RecordVolatilityIndex(entry.Asset, float64(h.VolatilityIndex))
	}
	i.metrics.RecordValidSources(entry.Asset, i.engine.ValidSourceCount(entry.Asset))

	if i.proc != nil {
		if err := i.proc.Process(ctx, entry); err != nil {
			// Accepted state stands; the entry is requeued for the
			// processor's flusher rather than re-run through validation.
			i.proc.Retry(entry)
			if i.log != nil {
				i.log.Error("audit forward failed, entry requeued", xlogger.Error(err),
					xlogger.String("asset", entry.Asset))
			}
		}
	}
	return nil
}

// Engine exposes the underlying engine for read-path handlers.
func (i *SubmissionIntake) Engine() *oracle.Engine { return i.engine }
