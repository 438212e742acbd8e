package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

// InsertBlackout stores a maintenance or training window. The admin surface
// that edits these lives outside the engine; the engine only reads them back.
func (db *DB) InsertBlackout(ctx context.Context, b *models.Blackout) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO blackouts (resource_id, start_at, end_at, kind, reason, created_at)
          VALUES (?, ?, ?, ?, ?, ?)`,
		b.ResourceID, b.Start.UTC(), b.End.UTC(), b.Kind, b.Reason, now)
	if err != nil {
		return fmt.Errorf("failed to insert blackout: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

// ListBlackouts returns blackout windows on the resource overlapping the
// half-open range [from, to), maintenance first, then by start.
func (db *DB) ListBlackouts(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Blackout, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, resource_id, start_at, end_at, kind, reason, created_at
          FROM blackouts
          WHERE resource_id = ? AND start_at < ? AND end_at > ?
          ORDER BY CASE kind WHEN 'maintenance' THEN 0 ELSE 1 END, start_at ASC`,
		resourceID, to.UTC(), from.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list blackouts: %w", err)
	}
	defer rows.Close()

	var out []models.Blackout
	for rows.Next() {
		var b models.Blackout
		var reason sql.NullString
		if err := rows.Scan(&b.ID, &b.ResourceID, &b.Start, &b.End, &b.Kind, &reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blackout: %w", err)
		}
		b.Reason = reason.String
		b.Start = b.Start.UTC()
		b.End = b.End.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
