package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/pkg/pagination"
)

// createdAtPrecision matches the datetime(3) column so the FIFO key read
// back from MySQL equals the one compared in memory.
const createdAtPrecision = time.Millisecond

// QueueService owns booking, call-next and status transitions.
// Book and CallNext for one department never run concurrently in this
// process; the store adds its own row lock for multi-process safety.
type QueueService struct {
	store     QueueStore
	allocator *TokenAllocator
	notifier  Notifier
	limiter   Limiter
	locks     *keyedMutex
	log       zerolog.Logger
}

// NewQueueService creates a new queue service. notifier and limiter may be nil.
func NewQueueService(store QueueStore, notifier Notifier, limiter Limiter, log zerolog.Logger) *QueueService {
	return &QueueService{
		store:     store,
		allocator: NewTokenAllocator(store, log),
		notifier:  notifier,
		limiter:   limiter,
		locks:     newKeyedMutex(),
		log:       log.With().Str("component", "queue").Logger(),
	}
}

// Allocator exposes the token allocator backing this service
func (s *QueueService) Allocator() *TokenAllocator {
	return s.allocator
}

// ============================================================
// PATIENT: Book & Status
// ============================================================

// BookInput represents a booking request
type BookInput struct {
	PatientID    uint   `json:"-"`
	HospitalID   uint   `json:"hospital_id" validate:"required"`
	DepartmentID uint   `json:"department_id" validate:"required"`
	Notes        string `json:"notes"`
}

// BookResult represents a booking response
type BookResult struct {
	Appointment          *domain.Appointment `json:"appointment"`
	TokenNumber          int                 `json:"token_number"`
	EstimatedWaitMinutes int                 `json:"estimated_wait_minutes"`
	WaitingAhead         int64               `json:"waiting_ahead"`
}

// Book issues a token and creates a WAITING appointment.
func (s *QueueService) Book(ctx context.Context, input *BookInput) (*BookResult, error) {
	if input.PatientID == 0 || input.HospitalID == 0 || input.DepartmentID == 0 {
		return nil, domain.Validationf("patient, hospital and department are required")
	}
	if len(input.Notes) > 500 {
		return nil, domain.Validationf("notes must be at most 500 characters")
	}

	if err := s.allow(ctx, fmt.Sprintf("book:%d", input.PatientID)); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(input.DepartmentID)
	defer unlock()

	var (
		appt  *domain.Appointment
		dept  *domain.Department
		ahead int64
	)
	err := s.store.WithDepartmentLock(ctx, input.DepartmentID, func(tx QueueStore) error {
		var err error
		dept, err = tx.GetDepartment(ctx, input.DepartmentID)
		if err != nil {
			return err
		}
		if dept.HospitalID != input.HospitalID {
			return domain.NotFoundf("department %d in hospital %d", input.DepartmentID, input.HospitalID)
		}

		token, err := s.allocator.allocate(ctx, tx, input.DepartmentID)
		if err != nil {
			return err
		}

		now := time.Now().Truncate(createdAtPrecision)
		appt = &domain.Appointment{
			PatientID:    input.PatientID,
			HospitalID:   input.HospitalID,
			DepartmentID: input.DepartmentID,
			TokenNumber:  token,
			Status:       domain.StatusWaiting,
			Notes:        input.Notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		ahead, err = tx.CountWaitingAhead(ctx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("department_id", appt.DepartmentID).
		Uint("patient_id", appt.PatientID).
		Int("token", appt.TokenNumber).
		Msg("token booked")

	s.notify(ctx, PatientRef(appt.PatientID), EventBooked, appointmentPayload(appt))
	s.notify(ctx, DepartmentRef(appt.DepartmentID), EventQueueUpdate, map[string]interface{}{
		"action":       "booked",
		"token_number": appt.TokenNumber,
	})

	return &BookResult{
		Appointment:          appt,
		TokenNumber:          appt.TokenNumber,
		EstimatedWaitMinutes: int(ahead) * dept.AverageServiceTimeMin,
		WaitingAhead:         ahead,
	}, nil
}

// GetQueueStatus projects the live queue position of an appointment.
func (s *QueueService) GetQueueStatus(ctx context.Context, appointmentID uint) (*domain.QueueStatus, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	dept, err := s.store.GetDepartment(ctx, appt.DepartmentID)
	if err != nil {
		return nil, err
	}

	status := ProjectStatus(appt, dept)
	if appt.Queued() {
		status.WaitingAhead, err = s.store.CountWaitingAhead(ctx, appt)
		if err != nil {
			return nil, err
		}
	}
	return &status, nil
}

// GetPatientQueueStatus is GetQueueStatus restricted to the owning patient.
func (s *QueueService) GetPatientQueueStatus(ctx context.Context, patientID, appointmentID uint) (*domain.QueueStatus, error) {
	if _, err := s.getOwned(ctx, patientID, appointmentID); err != nil {
		return nil, err
	}
	return s.GetQueueStatus(ctx, appointmentID)
}

// CancelByPatient cancels the caller's own appointment.
func (s *QueueService) CancelByPatient(ctx context.Context, patientID, appointmentID uint) (*domain.Appointment, error) {
	if _, err := s.getOwned(ctx, patientID, appointmentID); err != nil {
		return nil, err
	}
	return s.UpdateStatus(ctx, appointmentID, domain.StatusCancelled)
}

// ListMyAppointments returns a patient's appointments, newest first.
func (s *QueueService) ListMyAppointments(ctx context.Context, patientID uint, params *pagination.Params) ([]*domain.Appointment, *pagination.Meta, error) {
	items, total, err := s.store.ListAppointments(ctx, AppointmentFilter{
		PatientID: patientID,
		Offset:    params.Offset,
		Limit:     params.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	return items, pagination.GetMeta(params, total), nil
}

// ListDepartments returns a hospital's departments.
func (s *QueueService) ListDepartments(ctx context.Context, hospitalID uint) ([]*domain.Department, error) {
	if _, err := s.store.GetHospital(ctx, hospitalID); err != nil {
		return nil, err
	}
	return s.store.ListDepartments(ctx, hospitalID)
}

// GetDepartment returns a single department.
func (s *QueueService) GetDepartment(ctx context.Context, departmentID uint) (*domain.Department, error) {
	return s.store.GetDepartment(ctx, departmentID)
}

// ============================================================
// STAFF: Call & Transition
// ============================================================

// CallNext moves the next queued appointment of a department to SERVING.
// Queued EMERGENCY appointments are drained before plain WAITING ones.
func (s *QueueService) CallNext(ctx context.Context, departmentID uint) (*domain.Appointment, error) {
	unlock := s.locks.Lock(departmentID)
	defer unlock()

	var called *domain.Appointment
	err := s.store.WithDepartmentLock(ctx, departmentID, func(tx QueueStore) error {
		if _, err := tx.GetDepartment(ctx, departmentID); err != nil {
			return err
		}

		if err := ensureNotServing(ctx, tx, departmentID, 0); err != nil {
			return err
		}

		next, err := tx.FindOldestWaiting(ctx, departmentID)
		if err != nil {
			return err
		}
		if next == nil {
			return domain.ErrNoWaitingPatients
		}

		called, err = s.serve(ctx, tx, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("department_id", departmentID).
		Int("token", called.TokenNumber).
		Msg("token called")

	s.afterTransition(ctx, called)
	return called, nil
}

// UpdateStatus applies a staff or patient requested status change.
func (s *QueueService) UpdateStatus(ctx context.Context, appointmentID uint, newStatus domain.AppointmentStatus) (*domain.Appointment, error) {
	ev, err := domain.EventFor(newStatus)
	if err != nil {
		return nil, err
	}

	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(appt.DepartmentID)
	defer unlock()

	var (
		updated   *domain.Appointment
		unchanged bool
	)
	err = s.store.WithDepartmentLock(ctx, appt.DepartmentID, func(tx QueueStore) error {
		cur, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}

		to, err := domain.Transition(cur.Status, ev)
		if err != nil {
			return err
		}
		if to == cur.Status {
			updated, unchanged = cur, true
			return nil
		}

		if ev == domain.EventCallNext {
			if !cur.Queued() {
				return domain.InvalidTransitionf("appointment %d is already being served", cur.ID)
			}
			if err := ensureNotServing(ctx, tx, cur.DepartmentID, cur.ID); err != nil {
				return err
			}
			next, err := tx.FindOldestWaiting(ctx, cur.DepartmentID)
			if err != nil {
				return err
			}
			if next == nil || next.ID != cur.ID {
				return domain.InvalidTransitionf("token %d is not next in line", cur.TokenNumber)
			}
			updated, err = s.serve(ctx, tx, cur)
			return err
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, cur.ID, cur.Status, to, time.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		return updated, nil
	}

	s.log.Info().
		Uint("appointment_id", updated.ID).
		Uint("department_id", updated.DepartmentID).
		Int("token", updated.TokenNumber).
		Str("status", updated.Status.String()).
		Msg("appointment status updated")

	s.afterTransition(ctx, updated)
	return updated, nil
}

// Escalate flags an appointment as an emergency without issuing a new token.
func (s *QueueService) Escalate(ctx context.Context, appointmentID uint) (*domain.Appointment, error) {
	return s.UpdateStatus(ctx, appointmentID, domain.StatusEmergency)
}

// ============================================================
// STAFF: Dashboard
// ============================================================

// DashboardResponse represents the staff queue dashboard
type DashboardResponse struct {
	Department  *domain.Department                 `json:"department"`
	Status      map[domain.AppointmentStatus]int64 `json:"status"`
	Serving     *domain.Appointment                `json:"serving"`
	WaitingList []*domain.Appointment              `json:"waiting_list"`
}

// GetDashboard returns status counts and the live line for a department.
func (s *QueueService) GetDashboard(ctx context.Context, departmentID uint) (*DashboardResponse, error) {
	dept, err := s.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	counts, err := s.store.CountByStatus(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	serving, err := s.store.FindServing(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	waiting, _, err := s.store.ListAppointments(ctx, AppointmentFilter{
		DepartmentID: departmentID,
		Statuses:     []domain.AppointmentStatus{domain.StatusWaiting, domain.StatusEmergency},
	})
	if err != nil {
		return nil, err
	}

	line := make([]*domain.Appointment, 0, len(waiting))
	for _, a := range waiting {
		if a.Queued() {
			line = append(line, a)
		}
	}
	domain.SortCallOrder(line)

	return &DashboardResponse{
		Department:  dept,
		Status:      counts,
		Serving:     serving,
		WaitingList: line,
	}, nil
}

// ============================================================
// helpers
// ============================================================

func (s *QueueService) serve(ctx context.Context, tx QueueStore, appt *domain.Appointment) (*domain.Appointment, error) {
	to, err := domain.Transition(appt.Status, domain.EventCallNext)
	if err != nil {
		return nil, err
	}
	updated, err := tx.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to, time.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.SetCurrentToken(ctx, appt.DepartmentID, appt.TokenNumber); err != nil {
		return nil, err
	}
	return updated, nil
}

func ensureNotServing(ctx context.Context, tx QueueStore, departmentID, except uint) error {
	serving, err := tx.FindServing(ctx, departmentID)
	if err != nil {
		return err
	}
	if serving != nil && serving.ID != except {
		return domain.InvalidTransitionf("department %d is already serving token %d", departmentID, serving.TokenNumber)
	}
	return nil
}

func (s *QueueService) getOwned(ctx context.Context, patientID, appointmentID uint) (*domain.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, domain.NotFoundf("appointment %d", appointmentID)
	}
	return appt, nil
}

func (s *QueueService) allow(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// throttle backend down: fail open
		s.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *QueueService) afterTransition(ctx context.Context, appt *domain.Appointment) {
	payload := appointmentPayload(appt)

	switch {
	case appt.Status == domain.StatusServing:
		s.notify(ctx, PatientRef(appt.PatientID), EventReady, payload)
	case appt.Status == domain.StatusEmergency:
		s.notify(ctx, PatientRef(appt.PatientID), EventEmergency, payload)
	default:
		s.notify(ctx, PatientRef(appt.PatientID), EventStatusChanged, payload)
	}

	s.notify(ctx, DepartmentRef(appt.DepartmentID), EventQueueUpdate, map[string]interface{}{
		"action":       string(appt.Status),
		"token_number": appt.TokenNumber,
	})
}

func (s *QueueService) notify(ctx context.Context, ref string, kind EventKind, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, ref, kind, payload)
}

func appointmentPayload(appt *domain.Appointment) map[string]interface{} {
	return map[string]interface{}{
		"appointment_id": appt.ID,
		"department_id":  appt.DepartmentID,
		"token_number":   appt.TokenNumber,
		"status":         string(appt.Status),
	}
}

// keyedMutex serializes work per department id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*sync.Mutex)}
}

func (k *keyedMutex) Lock(id uint) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
