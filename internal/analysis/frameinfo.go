package analysis

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"studentmonitor/pkg/types"
)

// StatusUnanalyzed marks records produced without a vision backend
const StatusUnanalyzed = "unanalyzed"

// FrameInfoAnalyzer is the local fallback used when no analyzer URL is set.
// It reports frame geometry so the relay stays observable end to end.
type FrameInfoAnalyzer struct {
	clock clockwork.Clock
}

// NewFrameInfoAnalyzer creates the fallback analyzer. A nil clock uses real time.
func NewFrameInfoAnalyzer(clock clockwork.Clock) *FrameInfoAnalyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FrameInfoAnalyzer{clock: clock}
}

func (a *FrameInfoAnalyzer) Analyze(ctx context.Context, frame *types.Frame) (types.AnalysisRecord, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return types.AnalysisRecord{
		"status":     StatusUnanalyzed,
		"face_count": 0,
		"width":      frame.Width,
		"height":     frame.Height,
		"format":     frame.Format,
		"timestamp":  unixSeconds(a.clock.Now()),
	}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
