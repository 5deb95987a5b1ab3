package scheduler

import "errors"

var (
	// ErrAlreadyRunning is returned when Start is called on a loop that is
	// already ticking.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrNoModelAvailable is returned when neither the job's model, the
	// user's default models, nor any registry model can serve a run.
	ErrNoModelAvailable = errors.New("model not found and no fallback available")

	// ErrUserNotFound is returned when a job's owning user no longer exists.
	ErrUserNotFound = errors.New("job owner not found")
)
