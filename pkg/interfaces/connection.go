package interfaces

// Connection represents one live client connection, producer or consumer
// Implementations must make WriteJSON safe for concurrent callers.
type Connection interface {
	// WriteJSON queues a JSON message for the client.
	// A non-nil error means the connection can no longer be written to.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources. Idempotent.
	Close() error

	// GetID returns the identity the registry keys this connection by
	GetID() string

	// GetRole returns "producer" or "consumer"
	GetRole() string
}

// ConnectionRegistry tracks live connections per role
type ConnectionRegistry interface {
	RegisterProducer(conn Connection)
	RegisterConsumer(conn Connection)

	// Unregister calls are idempotent: removing an absent connection is a no-op
	UnregisterProducer(conn Connection)
	UnregisterConsumer(conn Connection)

	// Consumers returns a snapshot that later registry changes never mutate
	Consumers() []Connection
}
