package jobs

type JobType string

const (
	JobRegistrationConfirmed JobType = "registration_confirmed"
	JobRegistrationCancelled JobType = "registration_cancelled"
)

// IsValid reports whether t is a job type the worker knows how to run.
func (t JobType) IsValid() bool {
	switch t {
	case JobRegistrationConfirmed, JobRegistrationCancelled:
		return true
	default:
		return false
	}
}
