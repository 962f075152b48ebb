package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

func (s *Store) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = "Active"
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	meds, err := json.Marshal(p.Medications)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prescriptions(id, user_id, medications, status, created_at, updated_at)
		 VALUES(?,?,?,?,?,?)`,
		p.ID, p.UserID, string(meds), p.Status, fmtTime(now), fmtTime(now),
	)
	return err
}

func (s *Store) PrescriptionsByUser(ctx context.Context, userID string) ([]Prescription, error) {
	rows, err := s.db.QueryContext(ctx,
		prescriptionCols+` FROM prescriptions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePrescriptionMedications replaces the medications list of a prescription
// owned by userID. ErrNotFound covers both a missing id and a foreign owner.
func (s *Store) UpdatePrescriptionMedications(ctx context.Context, id, userID string, meds []Medication) (*Prescription, error) {
	b, err := json.Marshal(meds)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prescriptions SET medications = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(b), fmtTime(time.Now().UTC()), id, userID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, prescriptionCols+` FROM prescriptions WHERE id = ?`, id)
	p, err := scanPrescription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) DeletePrescription(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM prescriptions WHERE id = ? AND user_id = ?`, id, userID)
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

const prescriptionCols = `SELECT id, user_id, medications, status, created_at, updated_at`

func scanPrescription(row rowScanner) (*Prescription, error) {
	var (
		p                    Prescription
		meds                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.UserID, &meds, &p.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meds), &p.Medications); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
