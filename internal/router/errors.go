package router

import "errors"

// Routing errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrSnapshotSend  = errors.New("failed to deliver history snapshot")
)
