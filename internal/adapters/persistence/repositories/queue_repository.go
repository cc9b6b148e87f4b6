package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hospital-queue/internal/adapters/persistence/models"
	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/core/services"
)

// QueueRepository handles queue-related database operations
type QueueRepository struct {
	db *gorm.DB
}

var _ services.QueueStore = (*QueueRepository)(nil)

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// queued matches appointments still waiting to be called
const queued = "(status = 'WAITING' OR (status = 'EMERGENCY' AND called_at IS NULL))"

// inService matches the appointment staff are attending
const inService = "(status = 'SERVING' OR (status = 'EMERGENCY' AND called_at IS NOT NULL))"

// callOrder puts queued emergencies first, then FIFO
const callOrder = "CASE WHEN status = 'EMERGENCY' THEN 0 ELSE 1 END ASC, created_at ASC, token_number ASC"

// ============================================================
// Hospital & Department Queries
// ============================================================

// GetHospital returns a hospital by ID
func (r *QueueRepository) GetHospital(ctx context.Context, id uint) (*domain.Hospital, error) {
	var h models.Hospital
	if err := r.db.WithContext(ctx).First(&h, id).Error; err != nil {
		return nil, notFound(err, "hospital %d", id)
	}
	return h.ToDomain(), nil
}

// ListDepartments returns all departments of a hospital
func (r *QueueRepository) ListDepartments(ctx context.Context, hospitalID uint) ([]*domain.Department, error) {
	var rows []models.Department
	err := r.db.WithContext(ctx).
		Where("hospital_id = ?", hospitalID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Department, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// GetDepartment returns a department by ID
func (r *QueueRepository) GetDepartment(ctx context.Context, id uint) (*domain.Department, error) {
	var d models.Department
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, notFound(err, "department %d", id)
	}
	return d.ToDomain(), nil
}

// IncrementQueueCount bumps the counter only if it still equals expected.
func (r *QueueRepository) IncrementQueueCount(ctx context.Context, departmentID uint, expected int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Department{}).
		Where("id = ? AND current_queue_count = ?", departmentID, expected).
		Update("current_queue_count", gorm.Expr("current_queue_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetDepartment(ctx, departmentID); err != nil {
			return 0, err
		}
		return 0, domain.ErrConflict
	}
	return expected + 1, nil
}

// SetCurrentToken records the token now being served
func (r *QueueRepository) SetCurrentToken(ctx context.Context, departmentID uint, token int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Department{}).
		Where("id = ?", departmentID).
		Update("current_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero rows when the value is unchanged
		_, err := r.GetDepartment(ctx, departmentID)
		return err
	}
	return nil
}

// ============================================================
// Appointment Queries
// ============================================================

// InsertAppointment creates a new appointment
func (r *QueueRepository) InsertAppointment(ctx context.Context, appt *domain.Appointment) error {
	row := models.AppointmentFromDomain(appt)
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	if err != nil {
		return err
	}
	appt.ID = row.ID
	appt.CreatedAt = row.CreatedAt
	appt.UpdatedAt = row.UpdatedAt
	return nil
}

// GetAppointment returns an appointment by ID
func (r *QueueRepository) GetAppointment(ctx context.Context, id uint) (*domain.Appointment, error) {
	var a models.Appointment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err, "appointment %d", id)
	}
	return a.ToDomain(), nil
}

// UpdateAppointmentStatus moves an appointment from one status to another,
// failing with ErrConflict if it is no longer in from.
func (r *QueueRepository) UpdateAppointmentStatus(ctx context.Context, id uint, from, to domain.AppointmentStatus, at time.Time) (*domain.Appointment, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": at,
	}
	if to == domain.StatusServing {
		updates["called_at"] = at
	}
	if to.IsTerminal() {
		updates["completed_at"] = at
	}

	res := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetAppointment(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict
	}
	return r.GetAppointment(ctx, id)
}

// FindOldestWaiting returns the next appointment to call, or nil
func (r *QueueRepository) FindOldestWaiting(ctx context.Context, departmentID uint) (*domain.Appointment, error) {
	var a models.Appointment
	err := r.db.WithContext(ctx).
		Where("department_id = ?", departmentID).
		Where(queued).
		Order(callOrder).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.ToDomain(), nil
}

// FindServing returns the appointment in service, or nil
func (r *QueueRepository) FindServing(ctx context.Context, departmentID uint) (*domain.Appointment, error) {
	var a models.Appointment
	err := r.db.WithContext(ctx).
		Where("department_id = ?", departmentID).
		Where(inService).
		Order("called_at ASC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.ToDomain(), nil
}

// CountWaitingAhead returns how many queued appointments will be called before appt
func (r *QueueRepository) CountWaitingAhead(ctx context.Context, appt *domain.Appointment) (int64, error) {
	earlier := r.db.Where("created_at < ?", appt.CreatedAt).
		Or("created_at = ? AND token_number < ?", appt.CreatedAt, appt.TokenNumber)

	q := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("department_id = ? AND id <> ?", appt.DepartmentID, appt.ID).
		Where(queued)

	if appt.Status == domain.StatusEmergency {
		q = q.Where("status = ?", string(domain.StatusEmergency)).Where(earlier)
	} else {
		q = q.Where(r.db.Where("status = ?", string(domain.StatusEmergency)).Or(earlier))
	}

	var count int64
	err := q.Count(&count).Error
	return count, err
}

// CountByStatus returns appointment counts by status for a department
func (r *QueueRepository) CountByStatus(ctx context.Context, departmentID uint) (map[domain.AppointmentStatus]int64, error) {
	type Result struct {
		Status string
		Count  int64
	}
	var results []Result

	err := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Select("status, COUNT(*) as count").
		Where("department_id = ?", departmentID).
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.AppointmentStatus]int64, len(domain.AllStatuses))
	for _, st := range domain.AllStatuses {
		counts[st] = 0
	}
	for _, res := range results {
		counts[domain.AppointmentStatus(res.Status)] = res.Count
	}
	return counts, nil
}

// ListAppointments returns matches newest first with the unpaged total
func (r *QueueRepository) ListAppointments(ctx context.Context, filter services.AppointmentFilter) ([]*domain.Appointment, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Appointment{})
	if filter.PatientID != 0 {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.DepartmentID != 0 {
		q = q.Where("department_id = ?", filter.DepartmentID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.Appointment
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toDomainAppointments(rows), total, nil
}

// ListUnnotifiedQueued returns queued appointments without a nearly-turn alert
func (r *QueueRepository) ListUnnotifiedQueued(ctx context.Context) ([]*domain.Appointment, error) {
	var rows []models.Appointment
	err := r.db.WithContext(ctx).
		Where("notify_sent = ?", false).
		Where(queued).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainAppointments(rows), nil
}

// MarkNotified flags that the nearly-turn alert went out
func (r *QueueRepository) MarkNotified(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", id).
		Update("notify_sent", true).Error
}

// WithDepartmentLock runs fn in a transaction holding a row lock on the
// department. fn receives a repository bound to that transaction.
func (r *QueueRepository) WithDepartmentLock(ctx context.Context, departmentID uint, fn func(tx services.QueueStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Department
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, departmentID).Error
		if err != nil {
			return notFound(err, "department %d", departmentID)
		}
		return fn(&QueueRepository{db: tx})
	})
}

func toDomainAppointments(rows []models.Appointment) []*domain.Appointment {
	out := make([]*domain.Appointment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

// notFound maps gorm.ErrRecordNotFound onto domain.ErrNotFound
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundf(format, args...)
	}
	return err
}
