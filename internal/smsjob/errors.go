package smsjob

import "errors"

// Sentinel errors for job input construction and script generation.
var (
	ErrMissingPlacement       = errors.New("job has no placement")
	ErrMissingContentType     = errors.New("placement has no content type")
	ErrMissingTemplate        = errors.New("content type has no template")
	ErrMissingRecipientColumn = errors.New("content type has no recipient column")
	ErrMissingCubeSQL         = errors.New("cube integration has no SQL")
	ErrMissingSender          = errors.New("content type has no sender")
	ErrNoAdSets               = errors.New("placement has no ad sets")
	ErrInvalidSegment         = errors.New("ad set segment rule is invalid")
)
