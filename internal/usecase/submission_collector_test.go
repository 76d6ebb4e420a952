package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceMesh/internal/domain/models"
)

// fakeStream fails its first read session, then delivers one submission on
// the session opened after reconnect.
type fakeStream struct {
	mu         sync.Mutex
	reads      int
	reconnects int
	connected  bool
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error { return nil }

func (s *fakeStream) Read(context.Context) (<-chan *models.Submission, <-chan error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	subCh := make(chan *models.Submission, 1)
	errCh := make(chan error, 1)
	if n == 1 {
		errCh <- errors.New("connection reset")
		close(subCh)
		close(errCh)
		return subCh, errCh
	}
	subCh <- &models.Submission{
		Reporter: "rep-a", Asset: models.AssetBTC,
		Price: 50_000_000000, Volume: 20_000, Timestamp: intakeNow,
	}
	return subCh, errCh
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Close() error { return nil }

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeStream) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func TestCollectorReconnectsAndResumesReading(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)
	stream := &fakeStream{}
	c := NewSubmissionCollector(stream, in, mets, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The submission delivered after reconnect must reach the backend,
	// which requires fresh channels from a second Read call.
	waitFor(t, func() bool { return pub.count() == 1 }, "post-reconnect submission")
	if stream.reconnectCount() < 1 {
		t.Fatalf("reconnects = %d, want at least 1", stream.reconnectCount())
	}
}

func TestCollectorStopsOnContextCancel(t *testing.T) {
	pub := &stubPublisher{}
	mets := &stubMetrics{}
	in := newTestIntake(pub, mets)
	stream := &fakeStream{reads: 1} // skip the failing session
	c := NewSubmissionCollector(stream, in, mets, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return pub.count() == 1 }, "first submission")

	before := stream.reconnectCount()
	cancel()
	time.Sleep(50 * time.Millisecond)
	if got := stream.reconnectCount(); got != before {
		t.Fatalf("reconnects after cancel = %d, want %d", got, before)
	}
}
