package interfaces_test

import (
	"context"
	"testing"

	"studentmonitor/pkg/interfaces"
	"studentmonitor/pkg/types"
)

// Mock implementations for testing

type mockConnection struct{}

func (m *mockConnection) WriteJSON(v interface{}) error { return nil }
func (m *mockConnection) Close() error                  { return nil }
func (m *mockConnection) GetID() string                 { return "" }
func (m *mockConnection) GetRole() string               { return "" }

type mockRegistry struct{}

func (m *mockRegistry) RegisterProducer(conn interfaces.Connection)   {}
func (m *mockRegistry) RegisterConsumer(conn interfaces.Connection)   {}
func (m *mockRegistry) UnregisterProducer(conn interfaces.Connection) {}
func (m *mockRegistry) UnregisterConsumer(conn interfaces.Connection) {}
func (m *mockRegistry) Consumers() []interfaces.Connection            { return nil }

type mockAnalyzer struct{}

func (m *mockAnalyzer) Analyze(ctx context.Context, frame *types.Frame) (types.AnalysisRecord, error) {
	return types.AnalysisRecord{"status": "ok", "face_count": 0}, nil
}

type mockDispatcher struct{}

func (m *mockDispatcher) Submit(record types.AnalysisRecord, origin interfaces.Connection) error {
	return nil
}
func (m *mockDispatcher) AttachConsumer(conn interfaces.Connection) error { return nil }

type mockJournal struct{}

func (m *mockJournal) StoreRecord(ctx context.Context, entry *types.JournalEntry) error { return nil }
func (m *mockJournal) StoreConnectionEvent(ctx context.Context, event *types.ConnectionEvent) error {
	return nil
}
func (m *mockJournal) CountRecords(ctx context.Context) (int64, error) { return 0, nil }
func (m *mockJournal) HealthCheck(ctx context.Context) error           { return nil }
func (m *mockJournal) Close() error                                    { return nil }

func TestInterfaces_ContractCompliance(t *testing.T) {
	var _ interfaces.Connection = &mockConnection{}
	var _ interfaces.ConnectionRegistry = &mockRegistry{}
	var _ interfaces.Analyzer = &mockAnalyzer{}
	var _ interfaces.RecordDispatcher = &mockDispatcher{}
	var _ interfaces.Journal = &mockJournal{}
}

func TestAnalyzer_InterfaceContract(t *testing.T) {
	var analyzer interfaces.Analyzer = &mockAnalyzer{}

	record, err := analyzer.Analyze(context.Background(), &types.Frame{Data: []byte{1}})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if err := types.ValidateRecord(record); err != nil {
		t.Errorf("mock analyzer returned invalid record: %v", err)
	}
}

func TestJournal_InterfaceContract(t *testing.T) {
	var journal interfaces.Journal = &mockJournal{}
	ctx := context.Background()

	_ = journal.StoreRecord(ctx, &types.JournalEntry{})
	_ = journal.StoreConnectionEvent(ctx, &types.ConnectionEvent{})
	_, _ = journal.CountRecords(ctx)
	_ = journal.HealthCheck(ctx)
	_ = journal.Close()
}
