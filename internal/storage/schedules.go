package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateSchedule persists a new schedule. A missing ID is assigned here;
// CreatedAt/UpdatedAt are always set here.
func (s *Store) CreateSchedule(ctx context.Context, sc *Schedule) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sc.CreatedAt = now
	sc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, owner, channel_id, subject, time_of_day, remaining_runs, active, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		sc.ID, nullStr(sc.Owner), sc.ChannelID, sc.Subject, sc.TimeOfDay,
		sc.RemainingRuns, boolInt(sc.Active), fmtTime(now), fmtTime(now),
	)
	return err
}

// ActiveSchedules returns every schedule with active=1, for cold-start reload.
func (s *Store) ActiveSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		scheduleCols+` FROM schedules WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// SchedulesByOwner returns all schedules (active or not) owned by a user.
func (s *Store) SchedulesByOwner(ctx context.Context, owner string) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		scheduleCols+` FROM schedules WHERE owner = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (s *Store) ScheduleByID(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, scheduleCols+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// UpdateScheduleProgress writes back the only two mutable fields.
func (s *Store) UpdateScheduleProgress(ctx context.Context, id string, remainingRuns int, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET remaining_runs = ?, active = ?, updated_at = ? WHERE id = ?`,
		remainingRuns, boolInt(active), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneExhaustedSchedules deletes inactive schedules not touched since the cutoff.
// Returns the number of rows removed.
func (s *Store) PruneExhaustedSchedules(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM schedules WHERE active = 0 AND updated_at < ?`, fmtTime(before.UTC()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const scheduleCols = `SELECT id, owner, channel_id, subject, time_of_day, remaining_runs, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var (
		sc                   Schedule
		owner                sql.NullString
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(&sc.ID, &owner, &sc.ChannelID, &sc.Subject, &sc.TimeOfDay,
		&sc.RemainingRuns, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sc.Owner = owner.String
	sc.Active = active != 0
	sc.CreatedAt = parseTime(createdAt)
	sc.UpdatedAt = parseTime(updatedAt)
	return &sc, nil
}

func scanSchedules(rows *sql.Rows) ([]Schedule, error) {
	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func fmtTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
