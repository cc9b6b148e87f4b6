package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/pkg/jwt"
	"hospital-queue/internal/pkg/password"
)

// ============================================================
// OTP Service - phone verification for patients
// ============================================================

// PurposeLogin is the only challenge purpose issued today
const PurposeLogin = "login"

// OTPSender delivers a code to a phone, e.g. through an SMS gateway.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogOTPSender writes codes to the log. Development only.
type LogOTPSender struct {
	Log zerolog.Logger
}

// SendOTP implements OTPSender
func (s LogOTPSender) SendOTP(ctx context.Context, phone, code string) error {
	s.Log.Info().Str("phone", phone).Str("code", code).Msg("otp issued (dev sender)")
	return nil
}

// OTPConfig tunes challenge lifetime and token issuance
type OTPConfig struct {
	TTL                time.Duration
	Cooldown           time.Duration
	MaxAttempts        int
	CodeLength         int
	JWTSecret          string
	TokenExpiryMinutes int
}

func (c OTPConfig) withDefaults() OTPConfig {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.TokenExpiryMinutes <= 0 {
		c.TokenExpiryMinutes = 60
	}
	return c
}

// OTPService handles OTP generation and verification
type OTPService struct {
	store    OTPStore
	patients PatientStore
	limiter  Limiter
	sender   OTPSender
	cfg      OTPConfig
	log      zerolog.Logger
}

// NewOTPService creates a new OTP service. limiter may be nil.
func NewOTPService(store OTPStore, patients PatientStore, limiter Limiter, sender OTPSender, cfg OTPConfig, log zerolog.Logger) *OTPService {
	return &OTPService{
		store:    store,
		patients: patients,
		limiter:  limiter,
		sender:   sender,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "otp").Logger(),
	}
}

// OTPRequestResult tells the caller when the code lapses
type OTPRequestResult struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestOTP issues a new code for phone.
func (s *OTPService) RequestOTP(ctx context.Context, phone string) (*OTPRequestResult, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "otp:"+phone)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	now := time.Now()
	latest, err := s.store.GetLatestChallenge(ctx, phone, PurposeLogin)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if latest != nil && !latest.Verified && now.Sub(latest.CreatedAt) < s.cfg.Cooldown {
		return nil, fmt.Errorf("%w: wait before requesting another code", domain.ErrRateLimited)
	}

	code, err := generateSecureOTP(s.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := password.HashCode(code)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}

	challenge := &domain.OTPChallenge{
		Phone:     phone,
		Purpose:   PurposeLogin,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.store.SaveChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		return nil, fmt.Errorf("send otp: %w", err)
	}

	return &OTPRequestResult{Phone: phone, ExpiresAt: challenge.ExpiresAt}, nil
}

// VerifyInput represents an OTP verification request
type VerifyInput struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

// VerifyResult carries the patient's access token
type VerifyResult struct {
	Patient     *domain.Patient `json:"patient"`
	AccessToken string          `json:"access_token"`
	ExpiresIn   int             `json:"expires_in"`
}

// VerifyOTP checks a code, creates the patient on first login and issues a token.
func (s *OTPService) VerifyOTP(ctx context.Context, input *VerifyInput) (*VerifyResult, error) {
	phone, err := normalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Code) == "" {
		return nil, domain.Validationf("code is required")
	}

	challenge, err := s.store.GetLatestChallenge(ctx, phone, PurposeLogin)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrOTPInvalid
	}
	if err != nil {
		return nil, err
	}

	if challenge.Verified {
		return nil, domain.ErrOTPInvalid
	}
	if challenge.Expired(time.Now()) {
		return nil, domain.ErrOTPExpired
	}
	if challenge.Attempts >= s.cfg.MaxAttempts {
		return nil, domain.ErrOTPExhausted
	}

	// the attempt is claimed before the code is compared, so concurrent
	// guesses never get more than MaxAttempts comparisons
	claimed := challenge.Attempts + 1
	challenge.Attempts = claimed
	if err := s.swapChallenge(ctx, challenge, claimed-1); err != nil {
		return nil, err
	}

	if !password.Verify(strings.TrimSpace(input.Code), challenge.CodeHash) {
		return nil, fmt.Errorf("%w (%d attempts left)", domain.ErrOTPInvalid, s.cfg.MaxAttempts-claimed)
	}

	challenge.Verified = true
	if err := s.swapChallenge(ctx, challenge, claimed); err != nil {
		return nil, err
	}

	patient, err := s.findOrCreatePatient(ctx, phone, input.Name)
	if err != nil {
		return nil, err
	}

	token, err := jwt.GenerateAccessToken(patient.ID, patient.Phone, string(domain.RolePatient), s.cfg.JWTSecret, s.cfg.TokenExpiryMinutes)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().Uint("patient_id", patient.ID).Msg("patient verified")

	return &VerifyResult{
		Patient:     patient,
		AccessToken: token,
		ExpiresIn:   s.cfg.TokenExpiryMinutes * 60,
	}, nil
}

// swapChallenge persists c if nobody else touched it since it was read.
// Losing the race reads as an invalid code.
func (s *OTPService) swapChallenge(ctx context.Context, c *domain.OTPChallenge, expectedAttempts int) error {
	err := s.store.UpdateChallenge(ctx, c, expectedAttempts)
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrOTPInvalid
	}
	return err
}

// PurgeExpired removes challenges that lapsed before now.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredChallenges(ctx, time.Now())
}

func (s *OTPService) findOrCreatePatient(ctx context.Context, phone, name string) (*domain.Patient, error) {
	patient, err := s.patients.GetPatientByPhone(ctx, phone)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = phone
	}
	patient = &domain.Patient{Name: name, Phone: phone}
	if err := s.patients.CreatePatient(ctx, patient); err != nil {
		// lost a race with a concurrent first login
		if errors.Is(err, domain.ErrConflict) {
			return s.patients.GetPatientByPhone(ctx, phone)
		}
		return nil, err
	}
	return patient, nil
}

// normalizePhone strips separators and accepts 9-15 digits with an optional '+'.
func normalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", domain.Validationf("invalid phone number")
		}
	}
	out := b.String()
	digits := len(strings.TrimPrefix(out, "+"))
	if digits < 9 || digits > 15 {
		return "", domain.Validationf("invalid phone number")
	}
	return out, nil
}

// generateSecureOTP generates a cryptographically secure random numeric code
func generateSecureOTP(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
