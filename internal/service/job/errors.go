package job

import "errors"

// Sentinel errors for the job service layer.
var (
	ErrNotFound               = errors.New("job not found")
	ErrNotSMSJob              = errors.New("job is not an SMS job")
	ErrLocked                 = errors.New("job is already being processed")
	ErrMissingCubeIntegration = errors.New("sms integration has no cube integration")
)
