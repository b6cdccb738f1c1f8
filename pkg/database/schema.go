package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the journal schema matches what the code writes
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateConstraints()
}

func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"records", "connection_events", "schema_migrations"} {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

func (v *SchemaValidator) ValidateTableStructure() error {
	recordColumns := map[string]string{
		"id":           "TEXT",
		"producer_id":  "TEXT",
		"status":       "TEXT",
		"face_count":   "INTEGER",
		"record":       "TEXT",
		"published_at": "DATETIME",
	}
	if err := v.validateColumns("records", recordColumns); err != nil {
		return fmt.Errorf("records table structure invalid: %w", err)
	}

	eventColumns := map[string]string{
		"id":            "TEXT",
		"connection_id": "TEXT",
		"role":          "TEXT",
		"event":         "TEXT",
		"remote_addr":   "TEXT",
		"occurred_at":   "DATETIME",
	}
	if err := v.validateColumns("connection_events", eventColumns); err != nil {
		return fmt.Errorf("connection_events table structure invalid: %w", err)
	}

	return nil
}

func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range []string{
		"idx_records_published_at",
		"idx_records_status",
		"idx_connection_events_connection",
	} {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateConstraints confirms the role and event CHECK constraints reject bad rows
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`
		INSERT INTO connection_events (id, connection_id, role, event, occurred_at)
		VALUES ('schema-check', 'schema-check', 'observer', 'connected', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM connection_events WHERE id = 'schema-check'")
		return fmt.Errorf("check constraint not enforced: connection_events.role")
	}

	_, err = v.db.Exec(`
		INSERT INTO connection_events (id, connection_id, role, event, occurred_at)
		VALUES ('schema-check', 'schema-check', 'consumer', 'paused', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM connection_events WHERE id = 'schema-check'")
		return fmt.Errorf("check constraint not enforced: connection_events.event")
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, wantType := range expected {
		gotType, ok := found[column]
		if !ok {
			return fmt.Errorf("column %s not found", column)
		}
		if gotType != wantType {
			return fmt.Errorf("column %s has type %s, expected %s", column, gotType, wantType)
		}
	}
	return nil
}
