package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken is returned by CreateUser when the username already exists.
	ErrUsernameTaken = errors.New("username already taken")
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Schedule is a persisted reminder specification.
//
// Only RemainingRuns and Active change after creation, and only through
// UpdateScheduleProgress (driven by the scheduler's fire handler).
type Schedule struct {
	ID            string
	Owner         string // user id; empty for anonymous schedules
	ChannelID     string // destination Telegram chat id (opaque here)
	Subject       string // medication name
	TimeOfDay     string // "HH:MM" wall clock in the scheduler timezone
	RemainingRuns int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is the text delivered on each fire.
func (s *Schedule) Message() string {
	return s.Subject + " time reminder"
}

type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

type Prescription struct {
	ID          string
	UserID      string
	Medications []Medication
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Delivery records one processed reminder fire.
// Keep it compact and schema-stable.
type Delivery struct {
	At         time.Time
	ScheduleID string
	ChannelID  string
	OK         bool
	Error      string
	TookMS     int64
}
