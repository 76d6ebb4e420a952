package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PriceMesh/internal/domain/models"
	"PriceMesh/internal/domain/repository"
)

// ClickHouseAuditStore persists accepted submissions to ClickHouse. Rejected
// submissions never reach this store; the audit trail only records entries
// that passed validation.
type ClickHouseAuditStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseAuditStore creates the audit store over an existing pool.
func NewClickHouseAuditStore(db *sql.DB, table string) repository.AuditStore {
	return &ClickHouseAuditStore{db: db, table: table}
}

func (s *ClickHouseAuditStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseAuditStore) Store(ctx context.Context, e *models.FeedEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, asset, reporter, price, volume, weight, verified) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		time.Unix(e.Timestamp, 0),
		e.Asset,
		e.Reporter,
		e.Price,
		e.Volume,
		e.Weight,
		boolToUInt8(e.Verified),
	)
	return err
}

func (s *ClickHouseAuditStore) StoreBatch(ctx context.Context, entries []*models.FeedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(entries); start += chunkSize {
		end := start + chunkSize
		if end > len(entries) {
			end = len(entries)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, e := range entries[start:end] {
			if e == nil || e.Asset == "" || e.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.Unix(e.Timestamp, 0),
				e.Asset,
				e.Reporter,
				e.Price,
				e.Volume,
				e.Weight,
				boolToUInt8(e.Verified),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, asset, reporter, price, volume, weight, verified) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseAuditStore) Query(ctx context.Context, asset string, from, to time.Time, limit int) ([]*models.FeedEntry, error) {
	q := fmt.Sprintf("SELECT asset, reporter, ts, price, volume, weight, verified FROM %s WHERE asset = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, asset, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.FeedEntry
	for rows.Next() {
		var (
			e        models.FeedEntry
			ts       time.Time
			verified uint8
		)
		if err := rows.Scan(&e.Asset, &e.Reporter, &ts, &e.Price, &e.Volume, &e.Weight, &verified); err != nil {
			return nil, err
		}
		e.Timestamp = ts.Unix()
		e.Verified = verified != 0
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *ClickHouseAuditStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseAuditStore) Close() error {
	return nil // Managed by pkg
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
