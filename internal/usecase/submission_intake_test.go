package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceMesh/internal/domain/models"
	"PriceMesh/internal/oracle"
	xlogger "PriceMesh/pkg/logger"
)

type stubMetrics struct {
	mu       sync.Mutex
	accepted map[string]int // lane -> count
	rejected map[string]int // reason -> count
	sent     int
}

func (m *stubMetrics) RecordSubmissionAccepted(_, lane string) {
	m.mu.Lock()
	if m.accepted == nil {
		m.accepted = make(map[string]int)
	}
	m.accepted[lane]++
	m.mu.Unlock()
}

func (m *stubMetrics) RecordSubmissionRejected(_, reason string) {
	m.mu.Lock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
	m.mu.Unlock()
}

func (m *stubMetrics) RecordMessageSent(string, string) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *stubMetrics) RecordError(string)                    {}
func (m *stubMetrics) RecordVolatilityIndex(string, float64) {}
func (m *stubMetrics) RecordValidSources(string, int)        {}
func (m *stubMetrics) RecordLatency(string, float64)         {}

type stubPublisher struct {
	mu      sync.Mutex
	entries []*models.FeedEntry
	fail    bool
}

func (p *stubPublisher) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

func (p *stubPublisher) Publish(_ context.Context, e *models.FeedEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.entries = append(p.entries, e)
	return nil
}

func (p *stubPublisher) PublishBatch(ctx context.Context, entries []*models.FeedEntry) error {
	for _, e := range entries {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

const intakeNow = int64(1_700_000_000)

func newTestIntake(pub *stubPublisher, mets *stubMetrics) *SubmissionIntake {
	eng := oracle.NewEngine(models.OracleParams{
		ValidityPeriod:     300,
		MaxPriceDeviation:  1,
		MinRequiredSources: 1,
		MinVolumeThreshold: 10_000,
		SlippageTolerance:  50,
	}, oracle.WithClock(func() time.Time { return time.Unix(intakeNow, 0) }))
	eng.SetAuthorizedProvider("rep-a", true)

	proc := NewSubmissionProcessor(pub, nil, mets, "kafka", 100, time.Second)
	return NewSubmissionIntake(eng, proc, mets, "test", xlogger.NewNop())
}

func TestIntakeAcceptForwardsToBackend(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)

	err := in.Process(context.Background(), &models.Submission{
		Reporter: "rep-a", Asset: models.AssetBTC,
		Price: 50_000_000000, Volume: 20_000, Timestamp: intakeNow,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d entries, want 1", pub.count())
	}
	if mets.accepted["test"] != 1 {
		t.Fatalf("accepted[test] = %d, want 1", mets.accepted["test"])
	}
}

func TestIntakeRejectionNotForwarded(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)

	err := in.Process(context.Background(), &models.Submission{
		Reporter: "rep-unknown", Asset: models.AssetBTC,
		Price: 50_000_000000, Volume: 20_000, Timestamp: intakeNow,
	})
	if !errors.Is(err, oracle.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
	if pub.count() != 0 {
		t.Fatalf("rejected submission reached backend")
	}
	if mets.rejected["NOT_AUTHORIZED"] != 1 {
		t.Fatalf("rejected[NOT_AUTHORIZED] = %d, want 1", mets.rejected["NOT_AUTHORIZED"])
	}
}

func TestIntakeAuditFailureDoesNotUndoAccept(t *testing.T) {
	pub := &stubPublisher{fail: true}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)

	err := in.Process(context.Background(), &models.Submission{
		Reporter: "rep-a", Asset: models.AssetBTC,
		Price: 50_000_000000, Volume: 20_000, Timestamp: intakeNow,
	})
	if err != nil {
		t.Fatalf("audit failure surfaced to caller: %v", err)
	}
	if got := in.Engine().ValidSourceCount(models.AssetBTC); got != 1 {
		t.Fatalf("valid sources = %d, want 1", got)
	}
}

func TestIntakeWithLaneRelabels(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets).WithLane("kafka")

	err := in.Process(context.Background(), &models.Submission{
		Reporter: "rep-a", Asset: models.AssetBTC,
		Price: 50_000_000000, Volume: 20_000, Timestamp: intakeNow,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mets.accepted["kafka"] != 1 {
		t.Fatalf("accepted[kafka] = %d, want 1", mets.accepted["kafka"])
	}
}

func TestKafkaSubmissionsHandlerParsesAndConverts(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)
	h := NewKafkaSubmissionsHandler("oracle.submissions", in, mets)

	if h.Topic() != "oracle.submissions" {
		t.Fatalf("topic = %q", h.Topic())
	}

	// millisecond timestamp gets converted to seconds
	msg := []byte(`{"reporter":"rep-a","asset":"BTC","price":50000000000,"volume":20000,"t":1700000000000}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	entries := in.Engine().Entries(models.AssetBTC)
	if len(entries) != 1 || entries[0].Timestamp != intakeNow {
		t.Fatalf("entries = %+v, want one at %d", entries, intakeNow)
	}
}

func TestKafkaSubmissionsHandlerRejectionCommitsOffset(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)
	h := NewKafkaSubmissionsHandler("oracle.submissions", in, mets)

	// unauthorized reporter: deterministic rejection, no retry wanted
	msg := []byte(`{"reporter":"rep-x","asset":"BTC","price":1,"volume":20000,"t":1700000000}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("deterministic rejection should not error: %v", err)
	}

	if err := h.Handle(context.Background(), []byte("not json")); err == nil {
		t.Fatalf("malformed payload should error for retry/DLQ")
	}
}
