package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/koltyakov/flo/internal/domain"
)

// RecordDelivery appends d to the history, trimming old rows now and then.
func (s *Store) RecordDelivery(ctx context.Context, d domain.Delivery) error {
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now()
	}
	if _, err := s.insertDeliveryStmt.ExecContext(ctx, d.ID, d.ResourceURL, d.Bytes, d.Clients, d.DeliveredAt.UTC()); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if s.inserts.Add(1)%pruneEvery == 0 {
		if _, err := s.PruneDeliveries(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PruneDeliveries keeps only the most recent rows up to the history limit.
func (s *Store) PruneDeliveries(ctx context.Context) (int64, error) {
	res, err := s.pruneDeliveryStmt.ExecContext(ctx, s.historyLimit)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return res.RowsAffected()
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, resource_url, bytes, clients, delivered_at
FROM deliveries
ORDER BY delivered_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Delivery, 0, limit)
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.ID, &d.ResourceURL, &d.Bytes, &d.Clients, &d.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
