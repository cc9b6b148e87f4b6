package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"hospital-queue/internal/adapters/persistence/memory"
	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/core/services"
	"hospital-queue/internal/pkg/pagination"
)

type sentEvent struct {
	ref  string
	kind services.EventKind
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, ref string, kind services.EventKind, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{ref: ref, kind: kind})
}

func (n *recordingNotifier) has(ref string, kind services.EventKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.ref == ref && e.kind == kind {
			return true
		}
	}
	return false
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type fixture struct {
	store    *memory.Store
	svc      *services.QueueService
	notifier *recordingNotifier
	hospital *domain.Hospital
	dept     *domain.Department
}

func newFixture(t *testing.T, limiter services.Limiter) *fixture {
	t.Helper()
	store := memory.NewStore()
	h := &domain.Hospital{Code: "CITY", Name: "City Hospital", IsActive: true}
	store.AddHospital(h)
	d := &domain.Department{HospitalID: h.ID, Code: "GEN", Name: "General Medicine", AverageServiceTimeMin: 10, IsActive: true}
	store.AddDepartment(d)

	n := &recordingNotifier{}
	return &fixture{
		store:    store,
		svc:      services.NewQueueService(store, n, limiter, zerolog.Nop()),
		notifier: n,
		hospital: h,
		dept:     d,
	}
}

func (f *fixture) book(t *testing.T, patientID uint) *services.BookResult {
	t.Helper()
	res, err := f.svc.Book(context.Background(), &services.BookInput{
		PatientID:    patientID,
		HospitalID:   f.hospital.ID,
		DepartmentID: f.dept.ID,
	})
	require.NoError(t, err)
	return res
}

func TestBook_SequentialTokensAndCallNext(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var tokens []int
	for p := uint(1); p <= 3; p++ {
		tokens = append(tokens, f.book(t, p).TokenNumber)
	}
	assert.Equal(t, []int{1, 2, 3}, tokens)

	called, err := f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, called.TokenNumber)
	assert.Equal(t, domain.StatusServing, called.Status)
	assert.NotNil(t, called.CalledAt)

	dept, err := f.store.GetDepartment(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dept.CurrentToken)
	assert.Equal(t, 3, dept.CurrentQueueCount)

	assert.True(t, f.notifier.has(services.PatientRef(1), services.EventReady))
	assert.True(t, f.notifier.has(services.DepartmentRef(f.dept.ID), services.EventQueueUpdate))
}

func TestBook_EstimatedWaitUsesQueueAhead(t *testing.T) {
	f := newFixture(t, nil)

	first := f.book(t, 1)
	assert.Equal(t, 0, first.EstimatedWaitMinutes)

	f.book(t, 2)
	third := f.book(t, 3)
	assert.Equal(t, int64(2), third.WaitingAhead)
	assert.Equal(t, 20, third.EstimatedWaitMinutes)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, &services.BookInput{PatientID: 1, HospitalID: f.hospital.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Book(ctx, &services.BookInput{PatientID: 1, HospitalID: f.hospital.ID, DepartmentID: 404})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Book(ctx, &services.BookInput{PatientID: 1, HospitalID: 999, DepartmentID: f.dept.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBook_InactiveAndFullDepartments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	closed := &domain.Department{HospitalID: f.hospital.ID, Name: "Closed", AverageServiceTimeMin: 5, IsActive: false}
	f.store.AddDepartment(closed)
	_, err := f.svc.Book(ctx, &services.BookInput{PatientID: 1, HospitalID: f.hospital.ID, DepartmentID: closed.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)

	small := &domain.Department{HospitalID: f.hospital.ID, Name: "Small", AverageServiceTimeMin: 5, DailyCapacity: 1, IsActive: true}
	f.store.AddDepartment(small)
	_, err = f.svc.Book(ctx, &services.BookInput{PatientID: 1, HospitalID: f.hospital.ID, DepartmentID: small.ID})
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, &services.BookInput{PatientID: 2, HospitalID: f.hospital.ID, DepartmentID: small.ID})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBook_RateLimited(t *testing.T) {
	f := newFixture(t, denyLimiter{})

	_, err := f.svc.Book(context.Background(), &services.BookInput{PatientID: 1, HospitalID: f.hospital.ID, DepartmentID: f.dept.ID})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	dept, err := f.store.GetDepartment(context.Background(), f.dept.ID)
	require.NoError(t, err)
	assert.Zero(t, dept.CurrentQueueCount)
}

func TestBook_LimiterFailureFailsOpen(t *testing.T) {
	f := newFixture(t, brokenLimiter{})
	res := f.book(t, 1)
	assert.Equal(t, 1, res.TokenNumber)
}

func TestBook_ConcurrentTokensAreUnique(t *testing.T) {
	f := newFixture(t, nil)
	const n = 50

	tokens := make([]int, n)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := f.svc.Book(ctx, &services.BookInput{
				PatientID:    uint(i + 1),
				HospitalID:   f.hospital.ID,
				DepartmentID: f.dept.ID,
			})
			if err != nil {
				return err
			}
			tokens[i] = res.TokenNumber
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Ints(tokens)
	for i, tok := range tokens {
		assert.Equal(t, i+1, tok)
	}
}

func TestBook_TwoSimultaneousOnEmptyDepartment(t *testing.T) {
	f := newFixture(t, nil)

	var got [2]int
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			res, err := f.svc.Book(context.Background(), &services.BookInput{
				PatientID:    uint(i + 1),
				HospitalID:   f.hospital.ID,
				DepartmentID: f.dept.ID,
			})
			if err != nil {
				return err
			}
			got[i] = res.TokenNumber
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.ElementsMatch(t, []int{1, 2}, got[:])
}

func TestCallNext_EmptyQueue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CallNext(ctx, f.dept.ID)
	assert.ErrorIs(t, err, domain.ErrNoWaitingPatients)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	dept, err := f.store.GetDepartment(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, *f.dept, *dept)

	_, err = f.svc.CallNext(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCallNext_FIFOByCreatedAt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := time.Now()

	// token order deliberately disagrees with created_at to prove the key
	for _, a := range []struct {
		token int
		at    time.Duration
	}{{1, 3 * time.Second}, {2, 1 * time.Second}, {3, 2 * time.Second}} {
		require.NoError(t, f.store.InsertAppointment(ctx, &domain.Appointment{
			PatientID:    uint(a.token),
			HospitalID:   f.hospital.ID,
			DepartmentID: f.dept.ID,
			TokenNumber:  a.token,
			Status:       domain.StatusWaiting,
			CreatedAt:    base.Add(a.at),
		}))
	}

	var order []int
	for i := 0; i < 3; i++ {
		called, err := f.svc.CallNext(ctx, f.dept.ID)
		require.NoError(t, err)
		order = append(order, called.TokenNumber)
		_, err = f.svc.UpdateStatus(ctx, called.ID, domain.StatusCompleted)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{2, 3, 1}, order)
}

func TestCallNext_EmergencyLaneDrainedFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.book(t, 1)
	f.book(t, 2)
	c := f.book(t, 3)
	d := f.book(t, 4)

	_, err := f.svc.Escalate(ctx, d.Appointment.ID)
	require.NoError(t, err)
	_, err = f.svc.Escalate(ctx, c.Appointment.ID)
	require.NoError(t, err)
	assert.True(t, f.notifier.has(services.PatientRef(4), services.EventEmergency))

	var order []int
	for i := 0; i < 4; i++ {
		called, err := f.svc.CallNext(ctx, f.dept.ID)
		require.NoError(t, err)
		order = append(order, called.TokenNumber)
		_, err = f.svc.UpdateStatus(ctx, called.ID, domain.StatusCompleted)
		require.NoError(t, err)
	}
	// emergency class in FIFO order, then plain waiting
	assert.Equal(t, []int{3, 4, 1, 2}, order)
	assert.Equal(t, 1, a.TokenNumber)
}

func TestCallNext_SingleServing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, 1)
	f.book(t, 2)

	first, err := f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)

	_, err = f.svc.CallNext(ctx, f.dept.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrNoWaitingPatients)

	_, err = f.svc.UpdateStatus(ctx, first.ID, domain.StatusCompleted)
	require.NoError(t, err)

	second, err := f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TokenNumber)
}

func TestCallNext_ConcurrentCallsServeOnce(t *testing.T) {
	f := newFixture(t, nil)
	for p := uint(1); p <= 5; p++ {
		f.book(t, p)
	}

	var served int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := f.svc.CallNext(context.Background(), f.dept.ID)
			if err == nil {
				atomic.AddInt32(&served, 1)
				return nil
			}
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), served)

	counts, err := f.store.CountByStatus(context.Background(), f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.StatusServing])
	assert.Equal(t, int64(4), counts[domain.StatusWaiting])
}

func TestCallNext_DepartmentsAreIndependent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	other := &domain.Department{HospitalID: f.hospital.ID, Name: "Lab", AverageServiceTimeMin: 5, IsActive: true}
	f.store.AddDepartment(other)

	f.book(t, 1)
	res, err := f.svc.Book(ctx, &services.BookInput{PatientID: 2, HospitalID: f.hospital.ID, DepartmentID: other.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TokenNumber)

	_, err = f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)
	called, err := f.svc.CallNext(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, called.DepartmentID)
}

func TestEscalateWhileServing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, 1)
	f.book(t, 2)

	serving, err := f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)

	flagged, err := f.svc.Escalate(ctx, serving.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmergency, flagged.Status)
	assert.True(t, flagged.InService())

	// still being attended, the lane does not free up
	_, err = f.svc.CallNext(ctx, f.dept.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, serving.ID, domain.StatusServing)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, serving.ID, domain.StatusCompleted)
	require.NoError(t, err)

	next, err := f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.TokenNumber)
}

func TestUpdateStatus_TerminalIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t, 1)

	cancelled, err := f.svc.UpdateStatus(ctx, res.Appointment.ID, domain.StatusCancelled)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CompletedAt)

	for _, target := range []domain.AppointmentStatus{
		domain.StatusCancelled, domain.StatusCompleted, domain.StatusSkipped, domain.StatusEmergency, domain.StatusServing,
	} {
		_, err := f.svc.UpdateStatus(ctx, res.Appointment.ID, target)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, target)
	}

	after, err := f.store.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, *cancelled, *after)
}

func TestUpdateStatus_InvalidRequests(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t, 1)

	_, err := f.svc.UpdateStatus(ctx, res.Appointment.ID, domain.StatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, res.Appointment.ID, domain.StatusWaiting)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, res.Appointment.ID, domain.AppointmentStatus("LOST"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpdateStatus(ctx, 999, domain.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatus_ServeKeepsCallOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.book(t, 1)
	second := f.book(t, 2)

	_, err := f.svc.UpdateStatus(ctx, second.Appointment.ID, domain.StatusServing)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// nothing moved
	got, err := f.store.GetAppointment(ctx, second.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	dept, err := f.store.GetDepartment(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, dept.CurrentToken)

	served, err := f.svc.UpdateStatus(ctx, first.Appointment.ID, domain.StatusServing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusServing, served.Status)

	dept, err = f.store.GetDepartment(ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dept.CurrentToken)
}

func TestUpdateStatus_ServeEmergencyAheadOfOlderWaiting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.book(t, 1)
	second := f.book(t, 2)

	_, err := f.svc.Escalate(ctx, second.Appointment.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, first.Appointment.ID, domain.StatusServing)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	served, err := f.svc.UpdateStatus(ctx, second.Appointment.ID, domain.StatusServing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusServing, served.Status)
}

func TestGetQueueStatus_Projection(t *testing.T) {
	store := memory.NewStore()
	h := &domain.Hospital{Name: "City", IsActive: true}
	store.AddHospital(h)
	d := &domain.Department{HospitalID: h.ID, AverageServiceTimeMin: 10, CurrentQueueCount: 8, IsActive: true}
	store.AddDepartment(d)
	appt := &domain.Appointment{PatientID: 1, HospitalID: h.ID, DepartmentID: d.ID, TokenNumber: 5, Status: domain.StatusWaiting}
	require.NoError(t, store.InsertAppointment(context.Background(), appt))

	svc := services.NewQueueService(store, nil, nil, zerolog.Nop())
	status, err := svc.GetQueueStatus(context.Background(), appt.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, status.Position)
	assert.Equal(t, 30, status.EstimatedWaitMinutes)
	assert.Equal(t, int64(0), status.WaitingAhead)

	// read-only: repeated calls agree and do not mutate state
	again, err := svc.GetQueueStatus(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, status, again)

	_, err = svc.GetQueueStatus(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProjectStatus_NeverNegative(t *testing.T) {
	s := services.ProjectStatus(
		&domain.Appointment{TokenNumber: 9},
		&domain.Department{CurrentQueueCount: 4, AverageServiceTimeMin: 15},
	)
	assert.Equal(t, 0, s.Position)
	assert.Equal(t, 0, s.EstimatedWaitMinutes)
}

func TestPatientScopedOperations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	mine := f.book(t, 1)
	f.book(t, 1)
	f.book(t, 2)

	_, err := f.svc.GetPatientQueueStatus(ctx, 2, mine.Appointment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CancelByPatient(ctx, 2, mine.Appointment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := f.svc.CancelByPatient(ctx, 1, mine.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	items, meta, err := f.svc.ListMyAppointments(ctx, 1, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(2), meta.Total)
}

func TestGetDashboard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.book(t, 1)
	f.book(t, 2)
	third := f.book(t, 3)

	_, err := f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)
	_, err = f.svc.Escalate(ctx, third.Appointment.ID)
	require.NoError(t, err)

	dash, err := f.svc.GetDashboard(ctx, f.dept.ID)
	require.NoError(t, err)

	require.NotNil(t, dash.Serving)
	assert.Equal(t, 1, dash.Serving.TokenNumber)
	assert.Equal(t, int64(1), dash.Status[domain.StatusWaiting])
	assert.Equal(t, int64(1), dash.Status[domain.StatusEmergency])
	require.Len(t, dash.WaitingList, 2)
	assert.Equal(t, 3, dash.WaitingList[0].TokenNumber)
	assert.Equal(t, 2, dash.WaitingList[1].TokenNumber)
}

func TestListDepartments(t *testing.T) {
	f := newFixture(t, nil)

	depts, err := f.svc.ListDepartments(context.Background(), f.hospital.ID)
	require.NoError(t, err)
	require.Len(t, depts, 1)
	assert.Equal(t, "General Medicine", depts[0].Name)

	_, err = f.svc.ListDepartments(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEscalate_RepeatIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t, 1)

	first, err := f.svc.Escalate(ctx, res.Appointment.ID)
	require.NoError(t, err)
	f.notifier.mu.Lock()
	sent := len(f.notifier.events)
	f.notifier.mu.Unlock()

	again, err := f.svc.Escalate(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmergency, again.Status)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Len(t, f.notifier.events, sent)
}

func TestBook_CreatedAtHasMillisecondPrecision(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.book(t, 1)
	second := f.book(t, 2)

	for _, r := range []*services.BookResult{first, second} {
		stored, err := f.store.GetAppointment(ctx, r.Appointment.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.CreatedAt, stored.CreatedAt.Truncate(time.Millisecond))
	}

	// token 2 still counts token 1 ahead even when both share a millisecond
	assert.Equal(t, int64(1), second.WaitingAhead)
}
