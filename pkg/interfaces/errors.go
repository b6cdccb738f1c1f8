package interfaces

import "errors"

// Common errors shared by interface implementations
var (
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")
	ErrJournalClosed       = errors.New("journal is closed")
)
