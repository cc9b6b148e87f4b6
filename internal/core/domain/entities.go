package domain

import (
	"sort"
	"time"
)

// Role represents caller role in the system
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// Hospital owns a set of departments
type Hospital struct {
	ID       uint   `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Department is a service unit with its own independent queue.
// CurrentQueueCount is the highest token issued so far and only ever grows.
type Department struct {
	ID                    uint   `json:"id"`
	HospitalID            uint   `json:"hospital_id"`
	Code                  string `json:"code"`
	Name                  string `json:"name"`
	AverageServiceTimeMin int    `json:"average_service_time_min"`
	DailyCapacity         int    `json:"daily_capacity"`
	CurrentQueueCount     int    `json:"current_queue_count"`
	CurrentToken          int    `json:"current_token"`
	IsActive              bool   `json:"is_active"`
}

// AtCapacity reports whether the department has issued its daily allowance.
// A zero capacity means unlimited.
func (d *Department) AtCapacity() bool {
	return d.DailyCapacity > 0 && d.CurrentQueueCount >= d.DailyCapacity
}

// Appointment is one booked token in a department queue
type Appointment struct {
	ID           uint              `json:"id"`
	PatientID    uint              `json:"patient_id"`
	HospitalID   uint              `json:"hospital_id"`
	DepartmentID uint              `json:"department_id"`
	TokenNumber  int               `json:"token_number"`
	Status       AppointmentStatus `json:"status"`
	Notes        string            `json:"notes"`
	CreatedAt    time.Time         `json:"created_at"`
	CalledAt     *time.Time        `json:"called_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
	NotifySent   bool              `json:"-"`
}

// InService reports whether staff are currently attending this appointment.
// An appointment escalated while being served keeps its CalledAt.
func (a *Appointment) InService() bool {
	switch a.Status {
	case StatusServing:
		return true
	case StatusEmergency:
		return a.CalledAt != nil
	default:
		return false
	}
}

// Queued reports whether the appointment is still waiting to be called.
func (a *Appointment) Queued() bool {
	switch a.Status {
	case StatusWaiting:
		return true
	case StatusEmergency:
		return a.CalledAt == nil
	default:
		return false
	}
}

// QueueStatus is the live projection of an appointment's place in line
type QueueStatus struct {
	AppointmentID        uint              `json:"appointment_id"`
	DepartmentID         uint              `json:"department_id"`
	TokenNumber          int               `json:"token_number"`
	Status               AppointmentStatus `json:"status"`
	Position             int               `json:"position"`
	EstimatedWaitMinutes int               `json:"estimated_wait_minutes"`
	WaitingAhead         int64             `json:"waiting_ahead"`
	CurrentToken         int               `json:"current_token"`
}

// Patient is the caller identity created on first phone verification
type Patient struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OTPChallenge is a single-use, time-boxed phone verification code.
// CodeHash holds a bcrypt hash, never the code itself.
type OTPChallenge struct {
	ID        uint
	Phone     string
	Purpose   string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	Verified  bool
	CreatedAt time.Time
}

// Expired reports whether the challenge can no longer be verified at now.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CalledBefore reports whether a precedes b in call-next order: queued
// EMERGENCY before WAITING, then created_at, then token number.
func CalledBefore(a, b *Appointment) bool {
	ae, be := a.Status == StatusEmergency, b.Status == StatusEmergency
	if ae != be {
		return ae
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.TokenNumber < b.TokenNumber
}

// SortCallOrder sorts queued appointments into call-next order.
func SortCallOrder(appts []*Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return CalledBefore(appts[i], appts[j])
	})
}
