package repository

import (
	"context"
	"time"

	"PriceMesh/internal/domain/models"
)

// SubmissionStream is a live feed of reporter submissions (e.g. the feedgate
// WebSocket gateway).
type SubmissionStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Submission, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher emits accepted submissions to the audit topic.
type Publisher interface {
	Publish(ctx context.Context, entry *models.FeedEntry) error
	PublishBatch(ctx context.Context, entries []*models.FeedEntry) error
	Close() error
}

// AuditStore persists accepted submissions durably for later inspection.
type AuditStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, entry *models.FeedEntry) error
	StoreBatch(ctx context.Context, entries []*models.FeedEntry) error
	Query(ctx context.Context, asset string, from, to time.Time, limit int) ([]*models.FeedEntry, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// PriceCache caches computed prices for the read path.
type PriceCache interface {
	GetPrice(ctx context.Context, key string) (uint64, bool)
	SetPrice(ctx context.Context, key string, price uint64, ttl time.Duration)
}

type Metrics interface {
	RecordSubmissionAccepted(asset, lane string)
	RecordSubmissionRejected(asset, reason string)
	RecordMessageSent(backend, asset string)
	RecordError(kind string)
	RecordVolatilityIndex(asset string, index float64)
	RecordValidSources(asset string, count int)
	RecordLatency(op string, seconds float64)
}
