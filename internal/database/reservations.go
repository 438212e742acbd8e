package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
)

const reservationColumns = `id, ref, resource_id, resource_name, owner, owner_group,
       start_at, end_at, label, experiment, probe, billing, client_account, price_cents,
       status, created_by, created_at, canceled_by, canceled_at, cancel_reason,
       removed_by, removed_at, remove_reason, updated_at, version`

// activeStatusClause matches reservations that still occupy their slot.
const activeStatusClause = `status IN ('PENDING', 'APPROVED', 'CANCEL_PENDING')`

// capEpsilon absorbs julianday float noise so an exactly-at-ceiling sum is
// not rejected.
const capEpsilon = 1e-9

// CreateReservationLocked inserts a reservation inside one transaction that
// re-checks blackouts, overlapping active reservations and the supplied cap
// guards first. Two concurrent creates for overlapping ranges therefore
// cannot both commit: the loser observes the winner's row and gets
// ErrNotAvailable. Likewise two creates racing a shared cap ceiling: the
// second re-sum sees the first insert and gets ErrCapExceeded.
func (db *DB) CreateReservationLocked(ctx context.Context, r *models.Reservation, guards []models.CapGuard) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	start, end := r.Start.UTC(), r.End.UTC()

	var blackoutCount int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blackouts WHERE resource_id = ? AND start_at < ? AND end_at > ?`,
		r.ResourceID, end, start).Scan(&blackoutCount)
	if err != nil {
		return fmt.Errorf("failed to check blackouts in tx: %w", err)
	}
	if blackoutCount > 0 {
		return ErrBlackout
	}

	var overlapCount int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations
          WHERE resource_id = ? AND start_at < ? AND end_at > ? AND `+activeStatusClause,
		r.ResourceID, end, start).Scan(&overlapCount)
	if err != nil {
		return fmt.Errorf("failed to check overlap in tx: %w", err)
	}
	if overlapCount > 0 {
		return ErrNotAvailable
	}

	candidateHours := end.Sub(start).Hours()
	for _, g := range guards {
		var committed float64
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM((julianday(end_at) - julianday(start_at)) * 24.0), 0)
              FROM reservations
              WHERE resource_id = ? AND owner = ? AND label = ?
                AND start_at >= ? AND start_at < ? AND `+activeStatusClause,
			r.ResourceID, g.Owner, g.Label, g.From.UTC(), g.To.UTC()).Scan(&committed)
		if err != nil {
			return fmt.Errorf("failed to re-check cap in tx: %w", err)
		}
		if committed+candidateHours > g.LimitHours+capEpsilon {
			return fmt.Errorf("%w: per-%s ceiling %.1fh, %.1fh already committed",
				ErrCapExceeded, g.Scope, g.LimitHours, committed)
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (
            ref, resource_id, resource_name, owner, owner_group, start_at, end_at,
            label, experiment, probe, billing, client_account, price_cents, status,
            created_by, created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Ref, r.ResourceID, r.ResourceName, r.Owner, r.OwnerGroup, start, end,
		r.Label, r.Experiment, r.Probe, r.Billing, r.ClientAccount, r.PriceCents, r.Status,
		r.CreatedBy, now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	r.ID = id
	r.Start = start
	r.End = end
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1

	return tx.Commit()
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// ListOverlapping returns active reservations on the resource overlapping the
// half-open range [from, to).
func (db *DB) ListOverlapping(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
          WHERE resource_id = ? AND start_at < ? AND end_at > ? AND `+activeStatusClause+`
          ORDER BY start_at ASC`,
		resourceID, to.UTC(), from.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping reservations: %w", err)
	}
	return collectReservations(rows)
}

// ListOwnerCommitted returns the owner's active reservations of the given
// label whose start instant falls in [from, to). The policy engine sums their
// durations for cap aggregation.
func (db *DB) ListOwnerCommitted(ctx context.Context, resourceID int64, owner, label string, from, to time.Time) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
          WHERE resource_id = ? AND owner = ? AND label = ?
            AND start_at >= ? AND start_at < ? AND `+activeStatusClause+`
          ORDER BY start_at ASC`,
		resourceID, owner, label, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list committed reservations: %w", err)
	}
	return collectReservations(rows)
}

func (db *DB) ListPending(ctx context.Context) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
          WHERE status = ? ORDER BY start_at ASC`, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reservations: %w", err)
	}
	return collectReservations(rows)
}

// ListReservations applies the filter; zero-valued fields are skipped.
func (db *DB) ListReservations(ctx context.Context, f models.ReservationFilter) ([]models.Reservation, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ResourceID != 0 {
		clauses = append(clauses, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.Owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, f.Owner)
	}
	if len(f.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Statuses)), ", ")
		clauses = append(clauses, "status IN ("+placeholders+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "end_at > ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "start_at < ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY start_at ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return collectReservations(rows)
}

// UpdateStatusWithVersion moves the reservation to status when fromVersion
// still matches, bumping the version. Used for APPROVED and back-transitions
// that carry no audit fields.
func (db *DB) UpdateStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, version = version + 1, updated_at = ?
          WHERE id = ? AND version = ?`,
		status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	return checkAffected(result)
}

// MarkCanceled records the cancellation audit trail along with the status
// change (CANCELED or CANCEL_PENDING).
func (db *DB) MarkCanceled(ctx context.Context, id, fromVersion int64, status, by, reason string) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`UPDATE reservations
          SET status = ?, canceled_by = ?, canceled_at = ?, cancel_reason = ?,
              version = version + 1, updated_at = ?
          WHERE id = ? AND version = ?`,
		status, by, now, reason, now, id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to mark reservation canceled: %w", err)
	}
	return checkAffected(result)
}

// ClearCancelRequest returns a CANCEL_PENDING reservation to APPROVED and
// wipes the audit fields the rejected request had written.
func (db *DB) ClearCancelRequest(ctx context.Context, id, fromVersion int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE reservations
          SET status = ?, canceled_by = NULL, canceled_at = NULL, cancel_reason = NULL,
              version = version + 1, updated_at = ?
          WHERE id = ? AND version = ?`,
		models.StatusApproved, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to clear cancel request: %w", err)
	}
	return checkAffected(result)
}

// MarkRemoved archives the reservation with the mandatory removal reason.
func (db *DB) MarkRemoved(ctx context.Context, id, fromVersion int64, by, reason string) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`UPDATE reservations
          SET status = ?, removed_by = ?, removed_at = ?, remove_reason = ?,
              version = version + 1, updated_at = ?
          WHERE id = ? AND version = ?`,
		models.StatusRemoved, by, now, reason, now, id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to mark reservation removed: %w", err)
	}
	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var ownerGroup, probe, clientAccount sql.NullString
	var canceledBy, cancelReason, removedBy, removeReason sql.NullString
	var canceledAt, removedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.Ref, &r.ResourceID, &r.ResourceName, &r.Owner, &ownerGroup,
		&r.Start, &r.End, &r.Label, &r.Experiment, &probe, &r.Billing,
		&clientAccount, &r.PriceCents, &r.Status, &r.CreatedBy, &r.CreatedAt,
		&canceledBy, &canceledAt, &cancelReason,
		&removedBy, &removedAt, &removeReason, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	r.OwnerGroup = ownerGroup.String
	r.Probe = probe.String
	r.ClientAccount = clientAccount.String
	r.CanceledBy = canceledBy.String
	r.CancelReason = cancelReason.String
	r.RemovedBy = removedBy.String
	r.RemoveReason = removeReason.String
	if canceledAt.Valid {
		t := canceledAt.Time.UTC()
		r.CanceledAt = &t
	}
	if removedAt.Valid {
		t := removedAt.Time.UTC()
		r.RemovedAt = &t
	}
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]models.Reservation, error) {
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
