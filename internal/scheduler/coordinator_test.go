package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"caresentry/internal/notify"
	"caresentry/internal/storage"
	logx "caresentry/pkg/logx"
)

// ---- fakes ----

type fakeStore struct {
	mu         sync.Mutex
	seq        int
	schedules  map[string]storage.Schedule
	deliveries []storage.Delivery
}

func newFakeStore() *fakeStore {
	return &fakeStore{schedules: map[string]storage.Schedule{}}
}

func (f *fakeStore) CreateSchedule(ctx context.Context, sc *storage.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sc.ID == "" {
		f.seq++
		sc.ID = fmt.Sprintf("sched-%d", f.seq)
	}
	sc.CreatedAt = time.Now()
	sc.UpdatedAt = sc.CreatedAt
	f.schedules[sc.ID] = *sc
	return nil
}

func (f *fakeStore) ActiveSchedules(ctx context.Context) ([]storage.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Schedule
	for _, sc := range f.schedules {
		if sc.Active {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeStore) ScheduleByID(ctx context.Context, id string) (*storage.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.schedules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := sc
	return &cp, nil
}

func (f *fakeStore) UpdateScheduleProgress(ctx context.Context, id string, remainingRuns int, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.schedules[id]
	if !ok {
		return storage.ErrNotFound
	}
	sc.RemainingRuns = remainingRuns
	sc.Active = active
	sc.UpdatedAt = time.Now()
	f.schedules[id] = sc
	return nil
}

func (f *fakeStore) DeleteSchedule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeStore) AppendDelivery(ctx context.Context, d storage.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return nil
}

func (f *fakeStore) get(t *testing.T, id string) storage.Schedule {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.schedules[id]
	if !ok {
		t.Fatalf("schedule %s not in store", id)
	}
	return sc
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	sends []struct{ channel, text string }
}

func (f *fakeNotifier) Send(ctx context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, struct{ channel, text string }{channelID, text})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeStore, *fakeNotifier) {
	t.Helper()
	st := newFakeStore()
	n := &fakeNotifier{}
	c := NewCoordinator(st, n, NewTrigger(time.UTC, logx.Nop()), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	return c, st, n
}

// ---- tests ----

func TestCreateAndFireUntilExhaustion(t *testing.T) {
	t.Parallel()
	c, st, n := newTestCoordinator(t)

	created, err := c.CreateAndStart(context.Background(), CreateRequest{
		ChannelID: "123",
		Items:     []CreateItem{{Subject: "Paracetamol", TimeOfDay: "08:00", DurationDays: 3}},
	})
	if err != nil {
		t.Fatalf("CreateAndStart: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d schedules, want 1", len(created))
	}
	id := created[0].ID

	sc := st.get(t, id)
	if sc.RemainingRuns != 3 || !sc.Active {
		t.Fatalf("fresh schedule: runs=%d active=%v, want 3/true", sc.RemainingRuns, sc.Active)
	}
	if !c.Registry().Contains(id) {
		t.Fatal("job not registered after create")
	}

	for i := 0; i < 3; i++ {
		c.fire(context.Background(), id)
	}

	sc = st.get(t, id)
	if sc.RemainingRuns != 0 {
		t.Fatalf("RemainingRuns = %d, want 0", sc.RemainingRuns)
	}
	if sc.Active {
		t.Fatal("schedule still active after exhaustion")
	}
	if c.Registry().Contains(id) {
		t.Fatal("job still registered after exhaustion")
	}
	if n.count() != 3 {
		t.Fatalf("sends = %d, want 3", n.count())
	}
	if got := n.sends[0].text; got != "Paracetamol time reminder" {
		t.Fatalf("message = %q", got)
	}
	if got := n.sends[0].channel; got != "123" {
		t.Fatalf("channel = %q", got)
	}
}

func TestFireAfterExhaustionIsNoop(t *testing.T) {
	t.Parallel()
	c, st, n := newTestCoordinator(t)

	created, err := c.CreateAndStart(context.Background(), CreateRequest{
		ChannelID: "42",
		Items:     []CreateItem{{Subject: "Ibuprofen", TimeOfDay: "12:00", DurationDays: 1}},
	})
	if err != nil {
		t.Fatalf("CreateAndStart: %v", err)
	}
	id := created[0].ID

	c.fire(context.Background(), id)
	c.fire(context.Background(), id) // inactive now; must not send or decrement below 0

	sc := st.get(t, id)
	if sc.RemainingRuns != 0 || sc.Active {
		t.Fatalf("runs=%d active=%v, want 0/false", sc.RemainingRuns, sc.Active)
	}
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1", n.count())
	}
}

func TestFireOnMissingScheduleSkips(t *testing.T) {
	t.Parallel()
	c, st, n := newTestCoordinator(t)

	c.fire(context.Background(), "no-such-id")

	if n.count() != 0 {
		t.Fatalf("sends = %d, want 0", n.count())
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.deliveries) != 0 {
		t.Fatalf("deliveries logged = %d, want 0", len(st.deliveries))
	}
}

func TestDeliveryFailureStillConsumesRun(t *testing.T) {
	t.Parallel()
	if !ConsumeRunOnDeliveryFailure {
		t.Skip("policy changed; update this test alongside the constant")
	}
	c, st, n := newTestCoordinator(t)
	n.err = errors.New("boom")

	created, err := c.CreateAndStart(context.Background(), CreateRequest{
		ChannelID: "99",
		Items:     []CreateItem{{Subject: "Aspirin", TimeOfDay: "07:15", DurationDays: 2}},
	})
	if err != nil {
		t.Fatalf("CreateAndStart: %v", err)
	}
	id := created[0].ID

	c.fire(context.Background(), id)
	c.fire(context.Background(), id)

	sc := st.get(t, id)
	if sc.RemainingRuns != 0 || sc.Active {
		t.Fatalf("runs=%d active=%v, want 0/false even with failed deliveries", sc.RemainingRuns, sc.Active)
	}
	if n.count() != 2 {
		t.Fatalf("send attempts = %d, want 2", n.count())
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.deliveries) != 2 {
		t.Fatalf("deliveries logged = %d, want 2", len(st.deliveries))
	}
	if st.deliveries[0].OK || st.deliveries[0].Error == "" {
		t.Fatalf("delivery log should record the failure: %+v", st.deliveries[0])
	}
}

func TestLenientDurationDefault(t *testing.T) {
	t.Parallel()
	c, st, _ := newTestCoordinator(t)

	created, err := c.CreateAndStart(context.Background(), CreateRequest{
		ChannelID: "7",
		Items:     []CreateItem{{Subject: "Vitamin D", TimeOfDay: "09:00", DurationDays: 0}},
	})
	if err != nil {
		t.Fatalf("CreateAndStart: %v", err)
	}
	sc := st.get(t, created[0].ID)
	if sc.RemainingRuns != DefaultDurationDays {
		t.Fatalf("RemainingRuns = %d, want %d", sc.RemainingRuns, DefaultDurationDays)
	}
}

func TestValidationShortCircuitsPersistence(t *testing.T) {
	t.Parallel()
	c, st, _ := newTestCoordinator(t)

	tests := []CreateRequest{
		{ChannelID: "", Items: []CreateItem{{Subject: "X", TimeOfDay: "08:00", DurationDays: 1}}},
		{ChannelID: "1", Items: nil},
		{ChannelID: "1", Items: []CreateItem{{Subject: "X", TimeOfDay: "25:99", DurationDays: 1}}},
	}
	for _, req := range tests {
		if _, err := c.CreateAndStart(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("CreateAndStart(%+v) err = %v, want ErrValidation", req, err)
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.schedules) != 0 {
		t.Fatalf("schedules persisted = %d, want 0", len(st.schedules))
	}
	if got := c.Registry().Len(); got != 0 {
		t.Fatalf("jobs registered = %d, want 0", got)
	}
}

func TestReloadOnStartup(t *testing.T) {
	t.Parallel()
	c, st, _ := newTestCoordinator(t)

	seed := []storage.Schedule{
		{ID: "a", ChannelID: "1", Subject: "A", TimeOfDay: "08:00", RemainingRuns: 2, Active: true},
		{ID: "b", ChannelID: "2", Subject: "B", TimeOfDay: "20:00", RemainingRuns: 5, Active: true},
		{ID: "c", ChannelID: "3", Subject: "C", TimeOfDay: "10:00", RemainingRuns: 0, Active: false},
	}
	for _, sc := range seed {
		sc := sc
		st.schedules[sc.ID] = sc
	}

	if err := c.ReloadOnStartup(context.Background()); err != nil {
		t.Fatalf("ReloadOnStartup: %v", err)
	}
	if got := c.Registry().Len(); got != 2 {
		t.Fatalf("registered jobs = %d, want 2", got)
	}
	if c.Registry().Contains("c") {
		t.Fatal("inactive schedule was armed")
	}

	// Calling twice must not duplicate timers.
	if err := c.ReloadOnStartup(context.Background()); err != nil {
		t.Fatalf("second ReloadOnStartup: %v", err)
	}
	if got := c.Registry().Len(); got != 2 {
		t.Fatalf("registered jobs after second reload = %d, want 2", got)
	}
}

func TestDeleteCancelsJob(t *testing.T) {
	t.Parallel()
	c, st, _ := newTestCoordinator(t)

	created, err := c.CreateAndStart(context.Background(), CreateRequest{
		ChannelID: "55",
		Items:     []CreateItem{{Subject: "Zinc", TimeOfDay: "18:00", DurationDays: 4}},
	})
	if err != nil {
		t.Fatalf("CreateAndStart: %v", err)
	}
	id := created[0].ID

	if err := c.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if c.Registry().Contains(id) {
		t.Fatal("job still registered after delete")
	}
	if _, err := st.ScheduleByID(context.Background(), id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("schedule still in store after delete: %v", err)
	}

	// Deleting again reports not-found but still leaves no job behind.
	if err := c.Delete(context.Background(), id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestNotifierFuncAdapter(t *testing.T) {
	t.Parallel()
	var got string
	n := notify.Func(func(ctx context.Context, channelID, text string) error {
		got = channelID
		return nil
	})
	if err := n.Send(context.Background(), "9", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "9" {
		t.Fatalf("channel = %q, want 9", got)
	}
}
