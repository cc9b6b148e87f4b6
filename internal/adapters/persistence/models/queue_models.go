package models

import (
	"time"

	"gorm.io/gorm"

	"hospital-queue/internal/core/domain"
)

// ============================================================
// Queue Tables
// ============================================================

type Hospital struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Code      string         `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Name      string         `gorm:"size:150;not null" json:"name"`
	Address   *string        `gorm:"size:255" json:"address"`
	Phone     *string        `gorm:"size:20" json:"phone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Hospital) TableName() string {
	return "hospitals"
}

func (h *Hospital) ToDomain() *domain.Hospital {
	return &domain.Hospital{ID: h.ID, Code: h.Code, Name: h.Name, IsActive: h.IsActive}
}

type Department struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	HospitalID            uint      `gorm:"not null;index" json:"hospital_id"`
	Code                  string    `gorm:"size:20;not null" json:"code"`
	Name                  string    `gorm:"size:100;not null" json:"name"`
	AverageServiceTimeMin int       `gorm:"default:10" json:"average_service_time_min"`
	DailyCapacity         int       `gorm:"default:0" json:"daily_capacity"`
	CurrentQueueCount     int       `gorm:"default:0" json:"current_queue_count"`
	CurrentToken          int       `gorm:"default:0" json:"current_token"`
	IsActive              bool      `gorm:"default:true" json:"is_active"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Hospital              Hospital  `gorm:"foreignKey:HospitalID" json:"hospital,omitempty"`
}

func (Department) TableName() string {
	return "departments"
}

func (d *Department) ToDomain() *domain.Department {
	return &domain.Department{
		ID:                    d.ID,
		HospitalID:            d.HospitalID,
		Code:                  d.Code,
		Name:                  d.Name,
		AverageServiceTimeMin: d.AverageServiceTimeMin,
		DailyCapacity:         d.DailyCapacity,
		CurrentQueueCount:     d.CurrentQueueCount,
		CurrentToken:          d.CurrentToken,
		IsActive:              d.IsActive,
	}
}

// Appointment rows are unique per (department_id, token_number). The
// idx_appt_queue index backs call-next and waiting-ahead lookups.
type Appointment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PatientID    uint       `gorm:"not null;index" json:"patient_id"`
	HospitalID   uint       `gorm:"not null;index" json:"hospital_id"`
	DepartmentID uint       `gorm:"not null;uniqueIndex:uq_appt_dept_token,priority:1;index:idx_appt_queue,priority:1" json:"department_id"`
	TokenNumber  int        `gorm:"not null;uniqueIndex:uq_appt_dept_token,priority:2" json:"token_number"`
	Status       string     `gorm:"size:15;default:'WAITING';index:idx_appt_queue,priority:2" json:"status"`
	Notes        string     `gorm:"size:500" json:"notes"`
	CalledAt     *time.Time `json:"called_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	NotifySent   bool       `gorm:"default:false" json:"notify_sent"`
	CreatedAt    time.Time  `gorm:"precision:3;index:idx_appt_queue,priority:3" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Department   Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Patient      Patient    `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
}

func (Appointment) TableName() string {
	return "appointments"
}

func (a *Appointment) ToDomain() *domain.Appointment {
	return &domain.Appointment{
		ID:           a.ID,
		PatientID:    a.PatientID,
		HospitalID:   a.HospitalID,
		DepartmentID: a.DepartmentID,
		TokenNumber:  a.TokenNumber,
		Status:       domain.AppointmentStatus(a.Status),
		Notes:        a.Notes,
		CreatedAt:    a.CreatedAt,
		CalledAt:     a.CalledAt,
		CompletedAt:  a.CompletedAt,
		UpdatedAt:    a.UpdatedAt,
		NotifySent:   a.NotifySent,
	}
}

// AppointmentFromDomain maps a new appointment onto its row
func AppointmentFromDomain(a *domain.Appointment) *Appointment {
	return &Appointment{
		ID:           a.ID,
		PatientID:    a.PatientID,
		HospitalID:   a.HospitalID,
		DepartmentID: a.DepartmentID,
		TokenNumber:  a.TokenNumber,
		Status:       string(a.Status),
		Notes:        a.Notes,
		CalledAt:     a.CalledAt,
		CompletedAt:  a.CompletedAt,
		NotifySent:   a.NotifySent,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
