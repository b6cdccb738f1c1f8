package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "studentmonitor/pkg/database"
	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// Manager is the SQLite-backed journal. All writes go through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the write loop.
// Migrations are not applied here; see pkg/database.MigrationManager.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop retries a failed write once after RetryDelay
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Journal write failed, retrying in %v: %v", m.config.RetryDelay, err)
				select {
				case <-time.After(m.config.RetryDelay):
					err = op.operation(m.db)
					if err != nil {
						log.Printf("Journal write failed after retry: %v", err)
					}
				case <-m.shutdown:
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Journal write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrJournalClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timer.C:
		return fmt.Errorf("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrJournalClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		// the loop may have taken the op and be mid-retry
		select {
		case err := <-result:
			return err
		default:
			return interfaces.ErrJournalClosed
		}
	}
}

// StoreRecord appends one published record
func (m *Manager) StoreRecord(ctx context.Context, entry *types.JournalEntry) error {
	if entry == nil {
		return types.ErrNilRecord
	}

	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO records (id, producer_id, status, face_count, record, published_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			entry.ID,
			entry.ProducerID,
			entry.Status,
			entry.FaceCount,
			string(recordJSON),
			entry.PublishedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
		return nil
	})
}

// StoreConnectionEvent appends one connect or disconnect event
func (m *Manager) StoreConnectionEvent(ctx context.Context, event *types.ConnectionEvent) error {
	if event == nil {
		return fmt.Errorf("connection event cannot be nil")
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO connection_events (id, connection_id, role, event, remote_addr, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			event.ID,
			event.ConnectionID,
			event.Role,
			event.Event,
			event.RemoteAddr,
			event.OccurredAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert connection event: %w", err)
		}
		return nil
	})
}

// CountRecords reads concurrently with the write loop
func (m *Manager) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// ConnectionEvents returns the events of one connection in the order they occurred
func (m *Manager) ConnectionEvents(ctx context.Context, connectionID string) ([]*types.ConnectionEvent, error) {
	query := `
		SELECT id, connection_id, role, event, remote_addr, occurred_at
		FROM connection_events
		WHERE connection_id = ?
		ORDER BY occurred_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.ConnectionEvent
	for rows.Next() {
		var event types.ConnectionEvent
		if err := rows.Scan(
			&event.ID,
			&event.ConnectionID,
			&event.Role,
			&event.Event,
			&event.RemoteAddr,
			&event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection events: %w", err)
	}

	return events, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return interfaces.ErrJournalClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int64
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the write loop and closes the database. Later writes
// return interfaces.ErrJournalClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
