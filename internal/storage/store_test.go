package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "caresentry/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("Open with empty path should fail")
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	sc := Schedule{
		Owner:         "user-1",
		ChannelID:     "12345",
		Subject:       "Paracetamol",
		TimeOfDay:     "08:00",
		RemainingRuns: 3,
		Active:        true,
	}
	if err := st.CreateSchedule(ctx, &sc); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if sc.ID == "" {
		t.Fatal("CreateSchedule did not assign an id")
	}
	if sc.CreatedAt.IsZero() || sc.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	got, err := st.ScheduleByID(ctx, sc.ID)
	if err != nil {
		t.Fatalf("ScheduleByID: %v", err)
	}
	if got.Subject != "Paracetamol" || got.TimeOfDay != "08:00" ||
		got.RemainingRuns != 3 || !got.Active || got.Owner != "user-1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Message() != "Paracetamol time reminder" {
		t.Fatalf("Message = %q", got.Message())
	}
}

func TestActiveSchedulesFiltersInactive(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	a := Schedule{ChannelID: "1", Subject: "A", TimeOfDay: "08:00", RemainingRuns: 2, Active: true}
	b := Schedule{ChannelID: "2", Subject: "B", TimeOfDay: "09:00", RemainingRuns: 0, Active: false}
	for _, sc := range []*Schedule{&a, &b} {
		if err := st.CreateSchedule(ctx, sc); err != nil {
			t.Fatalf("CreateSchedule: %v", err)
		}
	}

	active, err := st.ActiveSchedules(ctx)
	if err != nil {
		t.Fatalf("ActiveSchedules: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("ActiveSchedules = %+v, want only %s", active, a.ID)
	}
}

func TestUpdateScheduleProgress(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	sc := Schedule{ChannelID: "1", Subject: "A", TimeOfDay: "08:00", RemainingRuns: 2, Active: true}
	if err := st.CreateSchedule(ctx, &sc); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if err := st.UpdateScheduleProgress(ctx, sc.ID, 0, false); err != nil {
		t.Fatalf("UpdateScheduleProgress: %v", err)
	}

	got, err := st.ScheduleByID(ctx, sc.ID)
	if err != nil {
		t.Fatalf("ScheduleByID: %v", err)
	}
	if got.RemainingRuns != 0 || got.Active {
		t.Fatalf("after update: runs=%d active=%v", got.RemainingRuns, got.Active)
	}

	if err := st.UpdateScheduleProgress(ctx, "no-such-id", 1, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of missing id err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSchedule(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	sc := Schedule{ChannelID: "1", Subject: "A", TimeOfDay: "08:00", RemainingRuns: 1, Active: true}
	if err := st.CreateSchedule(ctx, &sc); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if err := st.DeleteSchedule(ctx, sc.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if _, err := st.ScheduleByID(ctx, sc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ScheduleByID after delete err = %v, want ErrNotFound", err)
	}
	if err := st.DeleteSchedule(ctx, sc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteSchedule err = %v, want ErrNotFound", err)
	}
}

func TestPruneExhaustedSchedules(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	live := Schedule{ChannelID: "1", Subject: "Live", TimeOfDay: "08:00", RemainingRuns: 1, Active: true}
	dead := Schedule{ChannelID: "2", Subject: "Dead", TimeOfDay: "09:00", RemainingRuns: 0, Active: false}
	for _, sc := range []*Schedule{&live, &dead} {
		if err := st.CreateSchedule(ctx, sc); err != nil {
			t.Fatalf("CreateSchedule: %v", err)
		}
	}

	n, err := st.PruneExhaustedSchedules(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneExhaustedSchedules: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}
	if _, err := st.ScheduleByID(ctx, live.ID); err != nil {
		t.Fatalf("active schedule was pruned: %v", err)
	}
}

func TestUserRoundTripAndUniqueness(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	u := User{Username: " Alice ", Email: "alice@example.com", Phone: "123", PasswordHash: "x"}
	if err := st.CreateUser(ctx, &u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("username not normalized: %q", u.Username)
	}

	got, err := st.UserByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if got.ID != u.ID || got.Email != "alice@example.com" {
		t.Fatalf("lookup mismatch: %+v", got)
	}

	dup := User{Username: "alice", PasswordHash: "y"}
	if err := st.CreateUser(ctx, &dup); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate username err = %v, want ErrUsernameTaken", err)
	}

	if _, err := st.UserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UserByID missing err = %v, want ErrNotFound", err)
	}
}

func TestPrescriptionLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	p := Prescription{
		UserID: "user-1",
		Medications: []Medication{
			{Name: "Paracetamol", Dosage: "500mg", Frequency: "2x daily", Duration: "5 days"},
		},
	}
	if err := st.CreatePrescription(ctx, &p); err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}
	if p.Status != "Active" {
		t.Fatalf("default status = %q, want Active", p.Status)
	}

	list, err := st.PrescriptionsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("PrescriptionsByUser: %v", err)
	}
	if len(list) != 1 || len(list[0].Medications) != 1 || list[0].Medications[0].Name != "Paracetamol" {
		t.Fatalf("list mismatch: %+v", list)
	}

	meds := []Medication{{Name: "Ibuprofen", Dosage: "200mg"}}
	updated, err := st.UpdatePrescriptionMedications(ctx, p.ID, "user-1", meds)
	if err != nil {
		t.Fatalf("UpdatePrescriptionMedications: %v", err)
	}
	if len(updated.Medications) != 1 || updated.Medications[0].Name != "Ibuprofen" {
		t.Fatalf("update mismatch: %+v", updated)
	}

	// Owner scoping: another user cannot touch it.
	if _, err := st.UpdatePrescriptionMedications(ctx, p.ID, "user-2", meds); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner update err = %v, want ErrNotFound", err)
	}
	if err := st.DeletePrescription(ctx, p.ID, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner delete err = %v, want ErrNotFound", err)
	}

	if err := st.DeletePrescription(ctx, p.ID, "user-1"); err != nil {
		t.Fatalf("DeletePrescription: %v", err)
	}
	list, err = st.PrescriptionsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("PrescriptionsByUser: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("prescriptions remain after delete: %+v", list)
	}
}

func TestDeliveryLogAppendAndPrune(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := Delivery{At: time.Now().Add(-48 * time.Hour), ScheduleID: "a", ChannelID: "1", OK: true, TookMS: 12}
	fresh := Delivery{At: time.Now(), ScheduleID: "b", ChannelID: "2", OK: false, Error: "boom", TookMS: 30}
	for _, d := range []Delivery{old, fresh} {
		if err := st.AppendDelivery(ctx, d); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}

	n, err := st.PruneDeliveries(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneDeliveries: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d rows, want 1", n)
	}
}
