package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Catalog and provider errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrNoCandidates       = fmt.Errorf("no source candidates found")

	// Pipeline errors
	ErrAcquisitionFailed = fmt.Errorf("audio acquisition failed")
	ErrSeparationFailed  = fmt.Errorf("stem separation failed on all models")
	ErrInvalidStemDir    = fmt.Errorf("stem directory invalid")
	ErrUnknownChannel    = fmt.Errorf("unknown channel")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
