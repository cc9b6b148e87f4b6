package models

import (
	"time"

	"gorm.io/gorm"

	"hospital-queue/internal/core/domain"
)

// ============================================================
// Identity Tables
// ============================================================

// Patient represents patients table
type Patient struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Phone     string         `gorm:"size:20;uniqueIndex;not null" json:"phone"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Patient) TableName() string {
	return "patients"
}

func (p *Patient) ToDomain() *domain.Patient {
	return &domain.Patient{ID: p.ID, Name: p.Name, Phone: p.Phone}
}

// OTPChallenge represents otp_challenges table
type OTPChallenge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Phone     string    `gorm:"size:20;not null;index:idx_otp_lookup,priority:1" json:"phone"`
	Purpose   string    `gorm:"size:20;not null;index:idx_otp_lookup,priority:2" json:"purpose"`
	CodeHash  string    `gorm:"size:255;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Attempts  int       `gorm:"default:0" json:"attempts"`
	Verified  bool      `gorm:"default:false" json:"verified"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (OTPChallenge) TableName() string {
	return "otp_challenges"
}

func (c *OTPChallenge) ToDomain() *domain.OTPChallenge {
	return &domain.OTPChallenge{
		ID:        c.ID,
		Phone:     c.Phone,
		Purpose:   c.Purpose,
		CodeHash:  c.CodeHash,
		ExpiresAt: c.ExpiresAt,
		Attempts:  c.Attempts,
		Verified:  c.Verified,
		CreatedAt: c.CreatedAt,
	}
}

// AutoMigrate runs GORM auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Hospital{},
		&Department{},
		&Patient{},
		&Appointment{},
		&OTPChallenge{},
	)
}
