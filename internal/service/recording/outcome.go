package recording

// Outcome is the result of a recording operation, echoed to the model verbatim.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeAlreadyRecorded   Outcome = "already_recorded"
	OutcomeCorrected         Outcome = "corrected"
	OutcomeSuspicious        Outcome = "suspicious"
	OutcomeAlreadyOverridden Outcome = "already_overridden"
)

// ContactDetails is what a visitor shared when asking to be contacted.
type ContactDetails struct {
	Email    string
	Name     string
	Notes    string
	Override bool
}

const (
	defaultContactName  = "Name not provided"
	defaultContactNotes = "not provided"
)
