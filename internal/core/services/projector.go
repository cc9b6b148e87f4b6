package services

import "hospital-queue/internal/core/domain"

// ProjectStatus derives an appointment's place in line from the issuance
// counter alone. Skipped and cancelled tokens are not discounted; the live
// WaitingAhead figure is filled in by the caller.
func ProjectStatus(appt *domain.Appointment, dept *domain.Department) domain.QueueStatus {
	position := dept.CurrentQueueCount - appt.TokenNumber
	if position < 0 {
		position = 0
	}

	return domain.QueueStatus{
		AppointmentID:        appt.ID,
		DepartmentID:         appt.DepartmentID,
		TokenNumber:          appt.TokenNumber,
		Status:               appt.Status,
		Position:             position,
		EstimatedWaitMinutes: position * dept.AverageServiceTimeMin,
		CurrentToken:         dept.CurrentToken,
	}
}
