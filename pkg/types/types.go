package types

import (
	"time"
)

// Outbound message types exactly as the browser clients expect them
const (
	MessageTypeAnalysis      = "analysis"
	MessageTypeStudentUpdate = "student_update"
	MessageTypeSessionData   = "session_data"
)

// Connection roles
const (
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// Connection lifecycle events recorded in the journal
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// AnalysisRecord is one analyzer result for a single frame.
// The core never interprets it beyond the status and face_count fields;
// everything else is passed through untouched.
type AnalysisRecord map[string]interface{}

// Clone returns a shallow copy so the history buffer owns its own map.
// Nested values are shared, which is safe because records are never mutated.
func (r AnalysisRecord) Clone() AnalysisRecord {
	if r == nil {
		return nil
	}
	clone := make(AnalysisRecord, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// Status returns the status discriminator or "" when absent
func (r AnalysisRecord) Status() string {
	status, _ := r["status"].(string)
	return status
}

// AlertType returns the alert_type field or "" when absent
func (r AnalysisRecord) AlertType() string {
	alert, _ := r["alert_type"].(string)
	return alert
}

// FaceCount returns face_count as an int, or -1 when missing or not numeric
func (r AnalysisRecord) FaceCount() int {
	switch v := r["face_count"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}

// Envelope is the wire format of every server-to-client message
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewAnalysisMessage is the point-to-point echo sent back to a producer
func NewAnalysisMessage(record AnalysisRecord) Envelope {
	return Envelope{Type: MessageTypeAnalysis, Data: record}
}

// NewStudentUpdate is the fan-out message sent to every consumer
func NewStudentUpdate(record AnalysisRecord) Envelope {
	return Envelope{Type: MessageTypeStudentUpdate, Data: record}
}

// NewSessionData is the snapshot a consumer receives on connect
func NewSessionData(records []AnalysisRecord) Envelope {
	if records == nil {
		records = []AnalysisRecord{}
	}
	return Envelope{Type: MessageTypeSessionData, Data: records}
}

// FrameMessage is the inbound producer payload.
// Image is base64, optionally prefixed with a data-URL header.
type FrameMessage struct {
	Image string `json:"image"`
}

// HistoryResponse is the body of the point-in-time history query, oldest record first
type HistoryResponse struct {
	Data []AnalysisRecord `json:"data"`
}

// Frame is a decoded still image ready for analysis
type Frame struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// JournalEntry is one published record as stored in the audit journal
type JournalEntry struct {
	ID          string         `json:"id"`
	ProducerID  string         `json:"producer_id"`
	Status      string         `json:"status"`
	FaceCount   int            `json:"face_count"`
	Record      AnalysisRecord `json:"record"`
	PublishedAt time.Time      `json:"published_at"`
}

// ConnectionEvent records a connection entering or leaving the registry
type ConnectionEvent struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Role         string    `json:"role"`
	Event        string    `json:"event"`
	RemoteAddr   string    `json:"remote_addr"`
	OccurredAt   time.Time `json:"occurred_at"`
}
