package domain

// AppointmentStatus is the lifecycle state of a booked token
type AppointmentStatus string

const (
	StatusWaiting   AppointmentStatus = "WAITING"
	StatusServing   AppointmentStatus = "SERVING"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusSkipped   AppointmentStatus = "SKIPPED"
	StatusEmergency AppointmentStatus = "EMERGENCY"
)

// AllStatuses lists every status in display order
var AllStatuses = []AppointmentStatus{
	StatusWaiting,
	StatusServing,
	StatusEmergency,
	StatusCompleted,
	StatusSkipped,
	StatusCancelled,
}

// ParseStatus converts a wire value into an AppointmentStatus.
func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(s)
	switch st {
	case StatusWaiting, StatusServing, StatusCompleted, StatusCancelled, StatusSkipped, StatusEmergency:
		return st, nil
	default:
		return "", Validationf("unknown status %q", s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusSkipped:
		return true
	case StatusWaiting, StatusServing, StatusEmergency:
		return false
	default:
		return false
	}
}

// Event is a state machine input
type Event string

const (
	EventCallNext Event = "CALL_NEXT"
	EventComplete Event = "COMPLETE"
	EventCancel   Event = "CANCEL"
	EventSkip     Event = "SKIP"
	EventEscalate Event = "ESCALATE"
)

// EventFor maps a requested target status to the event producing it.
// WAITING is never a valid target: re-queue is not supported.
func EventFor(target AppointmentStatus) (Event, error) {
	switch target {
	case StatusServing:
		return EventCallNext, nil
	case StatusCompleted:
		return EventComplete, nil
	case StatusCancelled:
		return EventCancel, nil
	case StatusSkipped:
		return EventSkip, nil
	case StatusEmergency:
		return EventEscalate, nil
	case StatusWaiting:
		return "", InvalidTransitionf("cannot move an appointment back to %s", target)
	default:
		return "", Validationf("unknown status %q", target)
	}
}

// Transition applies ev to from and returns the resulting status.
func Transition(from AppointmentStatus, ev Event) (AppointmentStatus, error) {
	if from.IsTerminal() {
		return from, InvalidTransitionf("appointment is already %s", from)
	}

	switch from {
	case StatusWaiting:
		switch ev {
		case EventCallNext:
			return StatusServing, nil
		case EventCancel:
			return StatusCancelled, nil
		case EventSkip:
			return StatusSkipped, nil
		case EventEscalate:
			return StatusEmergency, nil
		}
	case StatusServing:
		switch ev {
		case EventComplete:
			return StatusCompleted, nil
		case EventCancel:
			return StatusCancelled, nil
		case EventEscalate:
			return StatusEmergency, nil
		}
	case StatusEmergency:
		switch ev {
		case EventEscalate:
			return StatusEmergency, nil
		case EventCallNext:
			return StatusServing, nil
		case EventComplete:
			return StatusCompleted, nil
		case EventCancel:
			return StatusCancelled, nil
		}
	case StatusCompleted, StatusCancelled, StatusSkipped:
		// handled above
	}
	return from, InvalidTransitionf("%s is not allowed from %s", ev, from)
}

func (s AppointmentStatus) String() string {
	return string(s)
}

func (e Event) String() string {
	return string(e)
}
