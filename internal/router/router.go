package router

import (
	"fmt"
	"log"

	"studentmonitor/internal/history"
	"studentmonitor/internal/metrics"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// Router commits analysis records to history and fans them out.
// Publish and AttachConsumer are not ordered against each other here;
// the hub serializes them.
type Router struct {
	registry     interfaces.ConnectionRegistry
	buffer       *history.Buffer
	metrics      *metrics.Metrics
	snapshotSize int
}

// NewRouter creates a router over registry and buffer. m may be nil.
// A non-positive snapshotSize uses history.DefaultSnapshotSize.
func NewRouter(registry interfaces.ConnectionRegistry, buffer *history.Buffer, m *metrics.Metrics, snapshotSize int) *Router {
	if snapshotSize <= 0 {
		snapshotSize = history.DefaultSnapshotSize
	}
	return &Router{
		registry:     registry,
		buffer:       buffer,
		metrics:      m,
		snapshotSize: snapshotSize,
	}
}

// Publish appends record to history, echoes it to origin as "analysis" and
// sends it to every registered consumer as "student_update".
// A connection whose send fails is unregistered and closed; the rest still
// receive the record. Returns the number of consumers the update was queued for.
func (r *Router) Publish(record types.AnalysisRecord, origin interfaces.Connection) int {
	if record == nil {
		return 0
	}

	record = record.Clone()
	r.buffer.Append(record)
	if r.metrics != nil {
		r.metrics.RecordsPublished.Inc()
		r.metrics.HistoryLength.Set(float64(r.buffer.Len()))
	}

	if origin != nil {
		if err := origin.WriteJSON(types.NewAnalysisMessage(record)); err != nil {
			log.Printf("Echo to producer %s failed, unregistering: %v", origin.GetID(), err)
			r.registry.UnregisterProducer(origin)
			_ = origin.Close()
			r.countFailure(types.RoleProducer)
		}
	}

	update := types.NewStudentUpdate(record)
	delivered := 0
	for _, consumer := range r.registry.Consumers() {
		if err := consumer.WriteJSON(update); err != nil {
			log.Printf("Update to consumer %s failed, unregistering: %v", consumer.GetID(), err)
			r.registry.UnregisterConsumer(consumer)
			_ = consumer.Close()
			r.countFailure(types.RoleConsumer)
			continue
		}
		delivered++
	}

	if r.metrics != nil {
		r.metrics.ConsumerDeliveries.Add(float64(delivered))
	}
	return delivered
}

// AttachConsumer registers conn and sends it the recent history snapshot.
// If the snapshot cannot be sent the consumer is unregistered again.
func (r *Router) AttachConsumer(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.registry.RegisterConsumer(conn)
	if err := conn.WriteJSON(types.NewSessionData(r.Snapshot())); err != nil {
		r.registry.UnregisterConsumer(conn)
		_ = conn.Close()
		r.countFailure(types.RoleConsumer)
		return fmt.Errorf("%w: %v", ErrSnapshotSend, err)
	}
	return nil
}

// Snapshot returns the records a newly connected consumer receives
func (r *Router) Snapshot() []types.AnalysisRecord {
	return r.buffer.Recent(r.snapshotSize)
}

func (r *Router) countFailure(role string) {
	if r.metrics != nil {
		r.metrics.SendFailures.WithLabelValues(role).Inc()
	}
}
