package services

import (
	"context"
	"time"

	"hospital-queue/internal/core/domain"
)

// QueueStore is the persistence collaborator for the queue core.
// Lookups of missing rows return domain.ErrNotFound; Find* methods return
// (nil, nil) when nothing matches.
type QueueStore interface {
	GetHospital(ctx context.Context, id uint) (*domain.Hospital, error)
	ListDepartments(ctx context.Context, hospitalID uint) ([]*domain.Department, error)
	GetDepartment(ctx context.Context, id uint) (*domain.Department, error)

	// IncrementQueueCount sets current_queue_count to expected+1 only if it
	// still equals expected. A lost race returns domain.ErrConflict.
	IncrementQueueCount(ctx context.Context, departmentID uint, expected int) (int, error)
	SetCurrentToken(ctx context.Context, departmentID uint, token int) error

	InsertAppointment(ctx context.Context, appt *domain.Appointment) error
	GetAppointment(ctx context.Context, id uint) (*domain.Appointment, error)

	// UpdateAppointmentStatus moves id from `from` to `to`, stamping
	// called_at on SERVING and completed_at on terminal states. If the row is
	// no longer in `from` it returns domain.ErrConflict.
	UpdateAppointmentStatus(ctx context.Context, id uint, from, to domain.AppointmentStatus, at time.Time) (*domain.Appointment, error)

	// FindOldestWaiting returns the next callable appointment: queued
	// EMERGENCY first, then WAITING, each by created_at then token.
	FindOldestWaiting(ctx context.Context, departmentID uint) (*domain.Appointment, error)
	FindServing(ctx context.Context, departmentID uint) (*domain.Appointment, error)
	CountWaitingAhead(ctx context.Context, appt *domain.Appointment) (int64, error)
	CountByStatus(ctx context.Context, departmentID uint) (map[domain.AppointmentStatus]int64, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]*domain.Appointment, int64, error)

	ListUnnotifiedQueued(ctx context.Context) ([]*domain.Appointment, error)
	MarkNotified(ctx context.Context, id uint) error

	// WithDepartmentLock runs fn with the department row locked. The store
	// handed to fn must be used for every read and write inside fn.
	WithDepartmentLock(ctx context.Context, departmentID uint, fn func(tx QueueStore) error) error
}

// AppointmentFilter narrows ListAppointments. Zero values mean "any".
type AppointmentFilter struct {
	PatientID    uint
	DepartmentID uint
	Statuses     []domain.AppointmentStatus
	Offset       int
	Limit        int
}

// PatientStore persists patient identities
type PatientStore interface {
	GetPatientByPhone(ctx context.Context, phone string) (*domain.Patient, error)
	CreatePatient(ctx context.Context, p *domain.Patient) error
}

// OTPStore persists OTP challenges
type OTPStore interface {
	SaveChallenge(ctx context.Context, c *domain.OTPChallenge) error
	GetLatestChallenge(ctx context.Context, phone, purpose string) (*domain.OTPChallenge, error)
	// UpdateChallenge writes c only while the stored row is unverified and
	// still has expectedAttempts, otherwise it returns domain.ErrConflict.
	UpdateChallenge(ctx context.Context, c *domain.OTPChallenge, expectedAttempts int) error
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

// Notifier dispatches queue events. Implementations must not block the
// caller on delivery and report failures only through logs.
type Notifier interface {
	Notify(ctx context.Context, recipientRef string, eventKind EventKind, payload map[string]interface{})
}

// Limiter is a fixed-window abuse throttle keyed by caller.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
