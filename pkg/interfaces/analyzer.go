package interfaces

import (
	"context"

	"studentmonitor/pkg/types"
)

// Analyzer turns one decoded frame into an analysis record
// A returned error means "no record for this frame"; callers skip the frame.
type Analyzer interface {
	Analyze(ctx context.Context, frame *types.Frame) (types.AnalysisRecord, error)
}

// RecordDispatcher is the entry point session loops use to reach the router
// Submit never blocks on delivery; AttachConsumer registers a consumer and
// delivers its history snapshot in publish order.
type RecordDispatcher interface {
	Submit(record types.AnalysisRecord, origin Connection) error
	AttachConsumer(conn Connection) error
}
