package storage

import (
	"context"
	"time"
)

// AppendDelivery records one processed fire. Best-effort from the caller's
// point of view; a failed append never blocks reminder progress.
func (s *Store) AppendDelivery(ctx context.Context, d Delivery) error {
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(at, schedule_id, channel_id, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?)`,
		fmtTime(d.At.UTC()), d.ScheduleID, d.ChannelID, boolInt(d.OK), nullStr(d.Error), d.TookMS,
	)
	return err
}

// PruneDeliveries removes log rows older than the cutoff.
func (s *Store) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE at < ?`, fmtTime(before.UTC()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
