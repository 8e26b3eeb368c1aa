package counseling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetonam/counseling-system/internal/drawing"
	"github.com/tetonam/counseling-system/internal/lock"
	"github.com/tetonam/counseling-system/internal/metrics"
	"github.com/tetonam/counseling-system/internal/user"
)

type serviceFixture struct {
	svc       *Service
	users     *user.MemoryDirectory
	drawings  *drawing.MemoryStore
	store     *MemoryStore
	locker    *lock.MemoryLocker
	counselor *user.User
}

func newServiceFixture(t *testing.T, students int) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		users:    user.NewMemoryDirectory(),
		drawings: drawing.NewMemoryStore(),
		store:    NewMemoryStore(),
		locker:   lock.NewMemoryLocker(),
	}

	f.counselor = f.users.Add(&user.User{
		Email:    "counselor@school.test",
		Name:     "Counselor",
		Role:     user.RoleCounselor,
		SchoolID: 1,
	})

	for i := 0; i < students; i++ {
		s := f.users.Add(&user.User{
			Email:    fmt.Sprintf("student%d@school.test", i),
			Name:     fmt.Sprintf("Student %d", i),
			Role:     user.RoleStudent,
			SchoolID: 1,
		})
		f.drawings.Add(s.ID, fmt.Sprintf("https://cdn.test/drawings/%d.png", i))
	}

	f.svc = NewService(f.users, f.drawings, f.store, f.locker, zerolog.Nop(),
		WithLockTimeouts(2*time.Second, 10*time.Second))
	return f
}

func TestReserve_Success(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	c, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        when,
		Type:        "psychological",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, c.Status)
	assert.Equal(t, when, c.ReservationTime)
	assert.Equal(t, f.counselor.ID, c.CounselorID)
	assert.NotEqual(t, uuid.Nil, c.DrawingID)
}

func TestReserve_ConflictOnSameSlot(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	req := ReserveRequest{CounselorID: f.counselor.ID, Time: when, Type: "psychological"}

	_, err := f.svc.Reserve(ctx, "student0@school.test", req)
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, "student1@school.test", req)
	require.ErrorIs(t, err, ErrAlreadyReserved)
}

func TestReserve_MinuteGranularityCollision(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        time.Date(2025, 8, 1, 15, 0, 10, 0, time.UTC),
		Type:        "psychological",
	})
	require.NoError(t, err)

	// Different seconds, same minute: same slot.
	_, err = f.svc.Reserve(ctx, "student1@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        time.Date(2025, 8, 1, 15, 0, 45, 0, time.UTC),
		Type:        "psychological",
	})
	require.ErrorIs(t, err, ErrAlreadyReserved)
}

func TestReserve_SameInstantDifferentOffsetsCollide(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	// 15:00 UTC and 17:00 at +02:00 are the same instant and must contend
	// on the same slot.
	utc := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	offset := time.Date(2025, 8, 1, 17, 0, 0, 0, time.FixedZone("", 2*60*60))
	require.True(t, utc.Equal(offset))

	_, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        utc,
		Type:        "psychological",
	})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, "student1@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        offset,
		Type:        "psychological",
	})
	require.ErrorIs(t, err, ErrAlreadyReserved)

	rows, err := f.store.ListByCounselor(ctx, f.counselor.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReserve_ExactlyOneWinnerUnderContention(t *testing.T) {
	const attempts = 100

	f := newServiceFixture(t, attempts)
	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := f.svc.Reserve(context.Background(), fmt.Sprintf("student%d@school.test", i), ReserveRequest{
				CounselorID: f.counselor.ID,
				Time:        when,
				Type:        "psychological",
			})
			results[i] = err
		}(i)
	}

	close(start)
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyReserved):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one attempt should win the slot")
	assert.Equal(t, attempts-1, conflicts)

	rows, err := f.store.ListByCounselor(context.Background(), f.counselor.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "exactly one reservation row should exist")
}

func TestReserve_IndependentTimesDoNotConflict(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC),
		Type:        "psychological",
	})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, "student1@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        time.Date(2025, 8, 1, 16, 0, 0, 0, time.UTC),
		Type:        "psychological",
	})
	require.NoError(t, err)
}

func TestReserve_IndependentCounselorsDoNotConflict(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	other := f.users.Add(&user.User{
		Email:    "counselor2@school.test",
		Name:     "Second Counselor",
		Role:     user.RoleCounselor,
		SchoolID: 1,
	})

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)

	_, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{CounselorID: f.counselor.ID, Time: when, Type: "psychological"})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, "student1@school.test", ReserveRequest{CounselorID: other.ID, Time: when, Type: "psychological"})
	require.NoError(t, err)
}

func TestReserve_UnknownStudent(t *testing.T) {
	f := newServiceFixture(t, 1)

	_, err := f.svc.Reserve(context.Background(), "nobody@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestReserve_CounselorIDPointsAtStudent(t *testing.T) {
	f := newServiceFixture(t, 2)

	peer, err := f.users.ByEmail(context.Background(), "student1@school.test")
	require.NoError(t, err)

	_, err = f.svc.Reserve(context.Background(), "student0@school.test", ReserveRequest{
		CounselorID: peer.ID,
		Time:        time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, user.ErrNotFound)
}

func TestReserve_MissingDrawing(t *testing.T) {
	f := newServiceFixture(t, 1)

	f.users.Add(&user.User{
		Email:    "nodrawing@school.test",
		Name:     "No Drawing",
		Role:     user.RoleStudent,
		SchoolID: 1,
	})

	_, err := f.svc.Reserve(context.Background(), "nodrawing@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, drawing.ErrNoDrawing)
}

// lockWaitSamples reads the current observation count of the lock wait
// histogram.
func lockWaitSamples(t *testing.T) uint64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, metrics.LockWaitDuration.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestReserve_LockHeldElsewhereSurfacesLockUnavailable(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	key := SlotKey(f.counselor.ID, when)

	// Simulate a holder that never releases within the service's wait.
	held, err := f.locker.Acquire(ctx, key, 10*time.Millisecond, time.Minute)
	require.NoError(t, err)
	defer held.Release(ctx)

	short := NewService(f.users, f.drawings, f.store, f.locker, zerolog.Nop(),
		WithLockTimeouts(30*time.Millisecond, time.Minute))

	samplesBefore := lockWaitSamples(t)

	_, err = short.Reserve(ctx, "student0@school.test", ReserveRequest{
		CounselorID: f.counselor.ID,
		Time:        when,
		Type:        "psychological",
	})
	require.ErrorIs(t, err, ErrLockUnavailable)
	require.NotErrorIs(t, err, ErrAlreadyReserved)

	// The exhausted wait is still observed by the lock wait histogram.
	assert.Greater(t, lockWaitSamples(t), samplesBefore)
}

// failingStore forces the write inside the lock to fail.
type failingStore struct {
	*MemoryStore
}

func (s *failingStore) Create(ctx context.Context, c *Counseling) error {
	return errors.New("write failed")
}

func TestReserve_LockReleasedAfterStoreFailure(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	failing := NewService(f.users, f.drawings, &failingStore{f.store}, f.locker, zerolog.Nop(),
		WithLockTimeouts(100*time.Millisecond, time.Minute))

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	req := ReserveRequest{CounselorID: f.counselor.ID, Time: when, Type: "psychological"}

	_, err := failing.Reserve(ctx, "student0@school.test", req)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrLockUnavailable)

	// No partial reservation remains, and the lock is free for the next caller.
	_, err = f.svc.Reserve(ctx, "student1@school.test", req)
	require.NoError(t, err)
}

func TestAvailableCounselors_FiltersBookedSlot(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()

	busy := f.users.Add(&user.User{
		Email:    "busy@school.test",
		Name:     "Busy Counselor",
		Role:     user.RoleCounselor,
		SchoolID: 1,
	})

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	_, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{CounselorID: busy.ID, Time: when, Type: "psychological"})
	require.NoError(t, err)

	available, err := f.svc.AvailableCounselors(ctx, "student0@school.test", when)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, f.counselor.ID, available[0].ID)
}

func TestUpcomingAndHistory(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()

	later := time.Date(2025, 8, 2, 10, 0, 0, 0, time.UTC)
	sooner := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)

	for _, when := range []time.Time{later, sooner} {
		_, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{CounselorID: f.counselor.ID, Time: when, Type: "psychological"})
		require.NoError(t, err)
	}

	next, err := f.svc.Upcoming(ctx, "student0@school.test")
	require.NoError(t, err)
	assert.Equal(t, sooner, next.ReservationTime)

	history, err := f.svc.StudentHistory(ctx, "student0@school.test")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].ReservationTime.Before(history[1].ReservationTime))

	fromCounselor, err := f.svc.CounselorHistory(ctx, "counselor@school.test")
	require.NoError(t, err)
	assert.Len(t, fromCounselor, 2)
}

func TestDetail_ParticipantsOnly(t *testing.T) {
	f := newServiceFixture(t, 2)
	ctx := context.Background()

	when := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	c, err := f.svc.Reserve(ctx, "student0@school.test", ReserveRequest{CounselorID: f.counselor.ID, Time: when, Type: "psychological"})
	require.NoError(t, err)

	got, err := f.svc.Detail(ctx, "student0@school.test", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.svc.Detail(ctx, "counselor@school.test", c.ID)
	require.NoError(t, err)

	_, err = f.svc.Detail(ctx, "student1@school.test", c.ID)
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestSlotKey_Format(t *testing.T) {
	when := time.Date(2025, 8, 1, 15, 0, 30, 0, time.UTC)
	assert.Equal(t, "counselor:7:time:202508011500", SlotKey(7, when))
}

func TestSlotKey_InstantBased(t *testing.T) {
	utc := time.Date(2025, 8, 1, 15, 0, 0, 0, time.UTC)
	offset := time.Date(2025, 8, 1, 17, 0, 0, 0, time.FixedZone("", 2*60*60))

	assert.Equal(t, SlotKey(7, utc), SlotKey(7, offset))
	assert.Equal(t, "counselor:7:time:202508011500", SlotKey(7, offset))
}
