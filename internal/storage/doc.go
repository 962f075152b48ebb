// Package storage is the sqlite persistence layer.
//
// It owns four tables:
//   - schedules: reminder schedules (the scheduler's only source of truth across restarts)
//   - users: registered accounts
//   - prescriptions: saved prescriptions per user
//   - deliveries: append-only log of processed reminder fires
package storage
