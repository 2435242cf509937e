package jobx

import "github.com/Abraxas-365/mailroom/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound    = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 0, "Job not found")
	ErrNoHandler      = jobxErrors.Register("NO_HANDLER", errx.TypeValidation, 0, "No handler registered for job type")
	ErrInvalidJob     = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 0, "Invalid job definition")
	ErrAlreadyRunning = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 0, "Worker is already running")
)

// NotFound is returned by backends for an unknown job id.
func NotFound(jobID string) error {
	return jobxErrors.New(ErrJobNotFound).WithDetail("job_id", jobID)
}
