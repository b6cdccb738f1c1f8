package types

import "errors"

// Record validation errors returned by ValidateRecord
var (
	ErrNilRecord        = errors.New("analysis record cannot be nil")
	ErrMissingStatus    = errors.New("analysis record must carry a non-empty string status")
	ErrInvalidFaceCount = errors.New("analysis record face_count must be an integer >= 0")
	ErrInvalidRole      = errors.New("role must be 'producer' or 'consumer'")
)
