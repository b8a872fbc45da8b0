package appointment

import "fmt"

// Action is a lifecycle request a client may make against an appointment.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionCheckIn    Action = "check_in"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionNoShow     Action = "no_show"
	ActionUndoNoShow Action = "undo_no_show"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

// AvailableActions returns the ordered quick actions offered for a status.
// Every status has a defined, possibly empty, set; anything not listed
// explicitly is treated as checked in but not started.
func AvailableActions(status AppointmentStatus) []Action {
	switch status {
	case StatusPending, StatusConfirmed:
		return []Action{ActionCheckIn, ActionNoShow}
	case StatusInProgress:
		return []Action{ActionComplete}
	case StatusNoShow:
		return []Action{ActionUndoNoShow}
	case StatusCompleted, StatusCancelled:
		return []Action{}
	default:
		return []Action{ActionStart}
	}
}

type rule struct {
	from []AppointmentStatus
	to   AppointmentStatus
}

var lifecycle = map[Action]rule{
	ActionConfirm:    {from: []AppointmentStatus{StatusPending}, to: StatusConfirmed},
	ActionCheckIn:    {from: []AppointmentStatus{StatusPending, StatusConfirmed}, to: StatusCheckedIn},
	ActionStart:      {from: []AppointmentStatus{StatusCheckedIn}, to: StatusInProgress},
	ActionComplete:   {from: []AppointmentStatus{StatusInProgress}, to: StatusCompleted},
	ActionNoShow:     {from: []AppointmentStatus{StatusPending, StatusConfirmed}, to: StatusNoShow},
	ActionUndoNoShow: {from: []AppointmentStatus{StatusNoShow}, to: StatusConfirmed},
	ActionCancel:     {from: []AppointmentStatus{StatusPending, StatusConfirmed, StatusCheckedIn, StatusInProgress}, to: StatusCancelled},
	ActionReschedule: {from: []AppointmentStatus{StatusPending, StatusConfirmed}, to: StatusPending},
}

// Transition resolves the status an action moves an appointment to.
func Transition(action Action, from AppointmentStatus) (AppointmentStatus, error) {
	r, ok := lifecycle[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidStatusTransition, action)
	}
	for _, s := range r.from {
		if s == from {
			return r.to, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s an appointment that is %s", ErrInvalidStatusTransition, action, from)
}
