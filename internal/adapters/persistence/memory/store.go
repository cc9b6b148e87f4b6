// Package memory is a process-local QueueStore used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/core/services"
)

// Store keeps every table in maps guarded by one mutex. Values are copied
// in and out so callers never share memory with the store.
type Store struct {
	mu           sync.RWMutex
	hospitals    map[uint]domain.Hospital
	departments  map[uint]domain.Department
	appointments map[uint]domain.Appointment
	patients     map[uint]domain.Patient
	challenges   map[uint]domain.OTPChallenge

	nextID map[string]uint

	deptLocks   sync.Mutex
	deptMutexes map[uint]*sync.Mutex
}

var (
	_ services.QueueStore   = (*Store)(nil)
	_ services.PatientStore = (*Store)(nil)
	_ services.OTPStore     = (*Store)(nil)
)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		hospitals:    make(map[uint]domain.Hospital),
		departments:  make(map[uint]domain.Department),
		appointments: make(map[uint]domain.Appointment),
		patients:     make(map[uint]domain.Patient),
		challenges:   make(map[uint]domain.OTPChallenge),
		nextID:       make(map[string]uint),
		deptMutexes:  make(map[uint]*sync.Mutex),
	}
}

func (s *Store) id(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

// ============================================================
// Seeding
// ============================================================

// AddHospital stores h, assigning an ID when zero.
func (s *Store) AddHospital(h *domain.Hospital) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		h.ID = s.id("hospitals")
	}
	s.hospitals[h.ID] = *h
}

// AddDepartment stores d, assigning an ID when zero.
func (s *Store) AddDepartment(d *domain.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.id("departments")
	}
	s.departments[d.ID] = *d
}

// ============================================================
// Hospitals & Departments
// ============================================================

func (s *Store) GetHospital(ctx context.Context, id uint) (*domain.Hospital, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hospitals[id]
	if !ok {
		return nil, domain.NotFoundf("hospital %d", id)
	}
	return &h, nil
}

func (s *Store) ListDepartments(ctx context.Context, hospitalID uint) ([]*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Department, 0)
	for _, d := range s.departments {
		if d.HospitalID == hospitalID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetDepartment(ctx context.Context, id uint) (*domain.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok {
		return nil, domain.NotFoundf("department %d", id)
	}
	return &d, nil
}

func (s *Store) IncrementQueueCount(ctx context.Context, departmentID uint, expected int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[departmentID]
	if !ok {
		return 0, domain.NotFoundf("department %d", departmentID)
	}
	if d.CurrentQueueCount != expected {
		return 0, domain.ErrConflict
	}
	d.CurrentQueueCount++
	s.departments[departmentID] = d
	return d.CurrentQueueCount, nil
}

func (s *Store) SetCurrentToken(ctx context.Context, departmentID uint, token int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departments[departmentID]
	if !ok {
		return domain.NotFoundf("department %d", departmentID)
	}
	d.CurrentToken = token
	s.departments[departmentID] = d
	return nil
}

// ============================================================
// Appointments
// ============================================================

func (s *Store) InsertAppointment(ctx context.Context, appt *domain.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appointments {
		if a.DepartmentID == appt.DepartmentID && a.TokenNumber == appt.TokenNumber {
			return domain.ErrConflict
		}
	}
	appt.ID = s.id("appointments")
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now()
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = appt.CreatedAt
	}
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id uint) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, domain.NotFoundf("appointment %d", id)
	}
	return &a, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uint, from, to domain.AppointmentStatus, at time.Time) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, domain.NotFoundf("appointment %d", id)
	}
	if a.Status != from {
		return nil, domain.ErrConflict
	}

	a.Status = to
	a.UpdatedAt = at
	if to == domain.StatusServing {
		t := at
		a.CalledAt = &t
	}
	if to.IsTerminal() {
		t := at
		a.CompletedAt = &t
	}
	s.appointments[id] = a
	return &a, nil
}

func (s *Store) FindOldestWaiting(ctx context.Context, departmentID uint) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Appointment
	for _, a := range s.appointments {
		if a.DepartmentID != departmentID || !a.Queued() {
			continue
		}
		a := a
		if best == nil || domain.CalledBefore(&a, best) {
			best = &a
		}
	}
	return best, nil
}

func (s *Store) FindServing(ctx context.Context, departmentID uint) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appointments {
		if a.DepartmentID == departmentID && a.InService() {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *Store) CountWaitingAhead(ctx context.Context, appt *domain.Appointment) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, a := range s.appointments {
		if a.ID == appt.ID || a.DepartmentID != appt.DepartmentID || !a.Queued() {
			continue
		}
		if domain.CalledBefore(&a, appt) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountByStatus(ctx context.Context, departmentID uint) (map[domain.AppointmentStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.AppointmentStatus]int64, len(domain.AllStatuses))
	for _, st := range domain.AllStatuses {
		counts[st] = 0
	}
	for _, a := range s.appointments {
		if a.DepartmentID == departmentID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

// ListAppointments returns matches newest first.
func (s *Store) ListAppointments(ctx context.Context, filter services.AppointmentFilter) ([]*domain.Appointment, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Appointment, 0)
	for _, a := range s.appointments {
		if filter.PatientID != 0 && a.PatientID != filter.PatientID {
			continue
		}
		if filter.DepartmentID != 0 && a.DepartmentID != filter.DepartmentID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, a.Status) {
			continue
		}
		a := a
		matched = append(matched, &a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*domain.Appointment{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) ListUnnotifiedQueued(ctx context.Context) ([]*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Appointment, 0)
	for _, a := range s.appointments {
		if a.Queued() && !a.NotifySent {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkNotified(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return domain.NotFoundf("appointment %d", id)
	}
	a.NotifySent = true
	s.appointments[id] = a
	return nil
}

// WithDepartmentLock serializes fn against other locked work on the same
// department. The store itself is handed to fn.
func (s *Store) WithDepartmentLock(ctx context.Context, departmentID uint, fn func(tx services.QueueStore) error) error {
	s.deptLocks.Lock()
	m, ok := s.deptMutexes[departmentID]
	if !ok {
		m = &sync.Mutex{}
		s.deptMutexes[departmentID] = m
	}
	s.deptLocks.Unlock()

	m.Lock()
	defer m.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

// ============================================================
// Patients & OTP
// ============================================================

func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.Phone == phone {
			return &p, nil
		}
	}
	return nil, domain.NotFoundf("patient with phone %s", phone)
}

func (s *Store) CreatePatient(ctx context.Context, p *domain.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.patients {
		if existing.Phone == p.Phone {
			return domain.ErrConflict
		}
	}
	p.ID = s.id("patients")
	s.patients[p.ID] = *p
	return nil
}

func (s *Store) SaveChallenge(ctx context.Context, c *domain.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id("otp_challenges")
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.challenges[c.ID] = *c
	return nil
}

func (s *Store) GetLatestChallenge(ctx context.Context, phone, purpose string) (*domain.OTPChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.OTPChallenge
	for _, c := range s.challenges {
		if c.Phone != phone || c.Purpose != purpose {
			continue
		}
		c := c
		if latest == nil || c.ID > latest.ID {
			latest = &c
		}
	}
	if latest == nil {
		return nil, domain.NotFoundf("otp challenge for %s", phone)
	}
	return latest, nil
}

func (s *Store) UpdateChallenge(ctx context.Context, c *domain.OTPChallenge, expectedAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.challenges[c.ID]
	if !ok {
		return domain.NotFoundf("otp challenge %d", c.ID)
	}
	if cur.Verified || cur.Attempts != expectedAttempts {
		return domain.ErrConflict
	}
	s.challenges[c.ID] = *c
	return nil
}

func (s *Store) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.challenges {
		if c.ExpiresAt.Before(before) {
			delete(s.challenges, id)
			n++
		}
	}
	return n, nil
}

func hasStatus(list []domain.AppointmentStatus, st domain.AppointmentStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}
