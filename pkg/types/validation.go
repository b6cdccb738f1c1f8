package types

import (
	"math"
)

// ValidateRecord checks the two fields the relay relies on for diagnostics.
// JSON numbers arrive as float64, so an integral float is accepted.
func ValidateRecord(record AnalysisRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	if status, ok := record["status"].(string); !ok || status == "" {
		return ErrMissingStatus
	}

	switch v := record["face_count"].(type) {
	case int:
		if v < 0 {
			return ErrInvalidFaceCount
		}
	case int64:
		if v < 0 {
			return ErrInvalidFaceCount
		}
	case float64:
		if v < 0 || math.Trunc(v) != v || math.IsInf(v, 0) {
			return ErrInvalidFaceCount
		}
	default:
		return ErrInvalidFaceCount
	}

	return nil
}

// IsValidRole reports whether role is one of the two connection roles
func IsValidRole(role string) bool {
	switch role {
	case RoleProducer, RoleConsumer:
		return true
	default:
		return false
	}
}
