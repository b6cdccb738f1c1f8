package analysis

import "errors"

// Frame decode and analyzer errors
var (
	ErrEmptyPayload    = errors.New("empty image payload")
	ErrInvalidBase64   = errors.New("image payload is not valid base64")
	ErrNotAnImage      = errors.New("payload does not decode to a supported image")
	ErrNilFrame        = errors.New("frame cannot be nil")
	ErrAnalyzerStatus  = errors.New("analyzer returned non-success status")
	ErrAnalyzerPayload = errors.New("analyzer returned an invalid record")
)
