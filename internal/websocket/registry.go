package websocket

import (
	"log"
	"sync"

	"studentmonitor/internal/metrics"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// Registry tracks live producer and consumer connections.
// Lookups copy under the read lock so callers iterate without holding it.
type Registry struct {
	mu        sync.RWMutex
	producers map[string]interfaces.Connection
	consumers map[string]interfaces.Connection
	metrics   *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		producers: make(map[string]interfaces.Connection),
		consumers: make(map[string]interfaces.Connection),
		metrics:   m,
	}
}

func (r *Registry) RegisterProducer(conn interfaces.Connection) {
	r.register(r.producers, types.RoleProducer, conn)
}

func (r *Registry) RegisterConsumer(conn interfaces.Connection) {
	r.register(r.consumers, types.RoleConsumer, conn)
}

func (r *Registry) UnregisterProducer(conn interfaces.Connection) {
	r.unregister(r.producers, types.RoleProducer, conn)
}

func (r *Registry) UnregisterConsumer(conn interfaces.Connection) {
	r.unregister(r.consumers, types.RoleConsumer, conn)
}

func (r *Registry) register(set map[string]interfaces.Connection, role string, conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	set[conn.GetID()] = conn
	count := len(set)
	r.setGauge(role, count)
	r.mu.Unlock()

	log.Printf("Registered %s %s (%d active)", role, conn.GetID(), count)
}

// unregister only removes the exact instance that is registered under the id,
// so removing an absent or stale connection is a no-op.
func (r *Registry) unregister(set map[string]interfaces.Connection, role string, conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	registered, exists := set[conn.GetID()]
	if !exists || registered != conn {
		r.mu.Unlock()
		return
	}
	delete(set, conn.GetID())
	count := len(set)
	r.setGauge(role, count)
	r.mu.Unlock()

	log.Printf("Unregistered %s %s (%d active)", role, conn.GetID(), count)
}

func (r *Registry) setGauge(role string, count int) {
	if r.metrics != nil {
		r.metrics.ActiveConnections.WithLabelValues(role).Set(float64(count))
	}
}

// Consumers returns a snapshot of registered consumers
func (r *Registry) Consumers() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.consumers)
}

// Producers returns a snapshot of registered producers
func (r *Registry) Producers() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.producers)
}

func snapshot(set map[string]interfaces.Connection) []interfaces.Connection {
	connections := make([]interfaces.Connection, 0, len(set))
	for _, conn := range set {
		connections = append(connections, conn)
	}
	return connections
}

// Stats returns connection counts for monitoring
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"producers":         len(r.producers),
		"consumers":         len(r.consumers),
		"total_connections": len(r.producers) + len(r.consumers),
	}
}

// CloseAll closes every registered connection. Session loops observe the
// closed sockets and unregister themselves.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	connections := append(snapshot(r.producers), snapshot(r.consumers)...)
	r.mu.RUnlock()

	for _, conn := range connections {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close %s %s: %v", conn.GetRole(), conn.GetID(), err)
		}
	}
}
