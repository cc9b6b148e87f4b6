package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"hospital-queue/internal/adapters/persistence/models"
	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/core/services"
)

// PatientRepository handles patients and their OTP challenges
type PatientRepository struct {
	db *gorm.DB
}

var (
	_ services.PatientStore = (*PatientRepository)(nil)
	_ services.OTPStore     = (*PatientRepository)(nil)
)

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *gorm.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// GetPatientByPhone finds a patient by phone number
func (r *PatientRepository) GetPatientByPhone(ctx context.Context, phone string) (*domain.Patient, error) {
	var p models.Patient
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&p).Error; err != nil {
		return nil, notFound(err, "patient with phone %s", phone)
	}
	return p.ToDomain(), nil
}

// CreatePatient creates a new patient
func (r *PatientRepository) CreatePatient(ctx context.Context, patient *domain.Patient) error {
	row := &models.Patient{Name: patient.Name, Phone: patient.Phone}
	err := r.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	if err != nil {
		return err
	}
	patient.ID = row.ID
	return nil
}

// ============================================================
// OTP Challenges
// ============================================================

// SaveChallenge stores a new challenge
func (r *PatientRepository) SaveChallenge(ctx context.Context, c *domain.OTPChallenge) error {
	row := &models.OTPChallenge{
		Phone:     c.Phone,
		Purpose:   c.Purpose,
		CodeHash:  c.CodeHash,
		ExpiresAt: c.ExpiresAt,
		Attempts:  c.Attempts,
		Verified:  c.Verified,
		CreatedAt: c.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	c.ID = row.ID
	c.CreatedAt = row.CreatedAt
	return nil
}

// GetLatestChallenge returns the newest challenge for phone and purpose
func (r *PatientRepository) GetLatestChallenge(ctx context.Context, phone, purpose string) (*domain.OTPChallenge, error) {
	var c models.OTPChallenge
	err := r.db.WithContext(ctx).
		Where("phone = ? AND purpose = ?", phone, purpose).
		Order("id DESC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "otp challenge for %s", phone)
	}
	return c.ToDomain(), nil
}

// UpdateChallenge persists attempts and verification state while the row
// is unverified and still holds expectedAttempts.
func (r *PatientRepository) UpdateChallenge(ctx context.Context, c *domain.OTPChallenge, expectedAttempts int) error {
	res := r.db.WithContext(ctx).
		Model(&models.OTPChallenge{}).
		Where("id = ? AND attempts = ? AND verified = ?", c.ID, expectedAttempts, false).
		Updates(map[string]interface{}{
			"attempts":   c.Attempts,
			"verified":   c.Verified,
			"expires_at": c.ExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&models.OTPChallenge{}).Where("id = ?", c.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.NotFoundf("otp challenge %d", c.ID)
		}
		return domain.ErrConflict
	}
	return nil
}

// DeleteExpiredChallenges removes challenges that expired before the cutoff
func (r *PatientRepository) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.OTPChallenge{})
	return res.RowsAffected, res.Error
}
