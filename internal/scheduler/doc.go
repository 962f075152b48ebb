// Package scheduler turns persisted reminder schedules into daily Telegram
// deliveries.
//
// Moving parts:
//   - TimeOfDay: validated "HH:MM" wall-clock spec
//   - Trigger: arms one cancellable goroutine per schedule that fires daily
//     at the schedule's wall-clock time in the configured zone
//   - Registry: identity -> live job map; at most one live job per schedule
//   - Coordinator: cold-start reload, create+arm, and the per-fire handler
//     (re-read, deliver, decrement, retire on exhaustion)
package scheduler
