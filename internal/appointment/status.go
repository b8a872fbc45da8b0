package appointment

// Tone is the severity used to render a status badge.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneWarning Tone = "warning"
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	TonePrimary Tone = "primary"
	ToneDanger  Tone = "danger"
)

type Badge struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

var badges = map[AppointmentStatus]Badge{
	StatusConfirmed:  {Label: "Confirmed", Tone: ToneSuccess},
	StatusCheckedIn:  {Label: "Checked In", Tone: ToneInfo},
	StatusInProgress: {Label: "In Progress", Tone: TonePrimary},
	StatusCompleted:  {Label: "Completed", Tone: ToneSuccess},
	StatusCancelled:  {Label: "Cancelled", Tone: ToneDanger},
	StatusNoShow:     {Label: "No Show", Tone: ToneDanger},
}

// Classify maps a status and its confirmation flag to a badge.
// Pending splits on the flag; unknown statuses fall back to a neutral "Pending".
func Classify(status AppointmentStatus, confirmed bool) Badge {
	if status == StatusPending {
		if confirmed {
			return Badge{Label: "Confirmed", Tone: ToneSuccess}
		}
		return Badge{Label: "Needs Confirmation", Tone: ToneWarning}
	}
	if b, ok := badges[status]; ok {
		return b
	}
	return Badge{Label: "Pending", Tone: ToneNeutral}
}
