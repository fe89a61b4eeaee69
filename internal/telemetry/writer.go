// Package telemetry maintains the durable per-session ledger of tool
// invocation attempts.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/internal/store"
)

// StartParams describes a new invocation attempt.
type StartParams struct {
	SessionID  string
	ToolID     string
	Provider   string
	Parameters map[string]any
	Metadata   map[string]string
}

// Completion carries the terminal outcome of an invocation.
type Completion struct {
	Status        domain.InvocationStatus
	ResultSummary string
	Metadata      map[string]string
}

// Writer is the telemetry ledger for all sessions of this process. Each
// session has one durable ledger document; the full record list is read,
// modified, and written back, which is safe under the one-writer-per-session
// assumption.
type Writer struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	ledgers map[string][]domain.ToolInvocationRecord // sessionID -> records
}

// NewWriter creates a Writer backed by the given store.
func NewWriter(st store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:   st,
		logger:  logger,
		now:     time.Now,
		ledgers: make(map[string][]domain.ToolInvocationRecord),
	}
}

// StartInvocation appends a pending record to the session ledger and
// persists it before any tool side effect runs.
func (w *Writer) StartInvocation(ctx context.Context, params StartParams) (*domain.ToolInvocationRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	records := w.loadLocked(ctx, params.SessionID)

	record := domain.ToolInvocationRecord{
		RecordID:    "inv-" + shortuuid.New(),
		SessionID:   params.SessionID,
		ToolID:      params.ToolID,
		Provider:    params.Provider,
		Status:      domain.RecordPending,
		Parameters:  params.Parameters,
		RequestedAt: w.now().UTC(),
		Metadata:    params.Metadata,
	}
	records = append(records, record)

	if err := w.persistLocked(ctx, params.SessionID, records); err != nil {
		return nil, err
	}
	return &record, nil
}

// CompleteInvocation transitions a pending record to its terminal status.
// It hydrates the session ledger from storage first, so a record opened by a
// previous process can still be completed. Completing a record twice, or
// with a non-terminal status, fails with a state error and leaves the ledger
// unchanged.
func (w *Writer) CompleteInvocation(ctx context.Context, sessionID, recordID string, completion Completion) (*domain.ToolInvocationRecord, error) {
	if !completion.Status.Terminal() {
		return nil, domain.NewErrorf(domain.ErrCodeState, "completion status %q is not terminal", completion.Status)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	records := w.loadLocked(ctx, sessionID)
	for i := range records {
		if records[i].RecordID != recordID {
			continue
		}
		if records[i].Status.Terminal() {
			return nil, domain.NewErrorf(domain.ErrCodeState, "invocation record %q is already %s", recordID, records[i].Status)
		}

		finishedAt := w.now().UTC()
		records[i].Status = completion.Status
		records[i].FinishedAt = &finishedAt
		records[i].ResultSummary = completion.ResultSummary
		if completion.Metadata != nil {
			if records[i].Metadata == nil {
				records[i].Metadata = make(map[string]string, len(completion.Metadata))
			}
			for k, v := range completion.Metadata {
				records[i].Metadata[k] = v
			}
		}

		if err := w.persistLocked(ctx, sessionID, records); err != nil {
			return nil, err
		}
		record := records[i]
		return &record, nil
	}
	return nil, domain.NewErrorf(domain.ErrCodeState, "invocation record %q not found in session ledger", recordID)
}

// GetRecordsForSession returns the session's records in append order,
// hydrating the ledger from storage when it is not cached.
func (w *Writer) GetRecordsForSession(ctx context.Context, sessionID string) []domain.ToolInvocationRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	records := w.loadLocked(ctx, sessionID)
	out := make([]domain.ToolInvocationRecord, len(records))
	copy(out, records)
	return out
}

// loadLocked returns the cached ledger, hydrating from storage on first
// access. Unreadable or corrupt storage yields a fresh empty ledger:
// telemetry loss is tolerated, failing the caller is not.
func (w *Writer) loadLocked(ctx context.Context, sessionID string) []domain.ToolInvocationRecord {
	if records, ok := w.ledgers[sessionID]; ok {
		return records
	}

	var records []domain.ToolInvocationRecord
	raw, err := w.store.GetTelemetryLedger(ctx, sessionID)
	switch {
	case err != nil:
		w.logger.Warn("telemetry ledger unreadable, starting fresh",
			observability.FieldSessionID, sessionID, "error", err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &records); err != nil {
			w.logger.Warn("telemetry ledger corrupt, starting fresh",
				observability.FieldSessionID, sessionID, "error", err)
			records = nil
		}
	}

	w.ledgers[sessionID] = records
	return records
}

func (w *Writer) persistLocked(ctx context.Context, sessionID string, records []domain.ToolInvocationRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return domain.WrapError(domain.ErrCodeUnknown, "failed to marshal telemetry ledger", err)
	}
	if err := w.store.SaveTelemetryLedger(ctx, sessionID, raw); err != nil {
		return domain.WrapError(domain.ErrCodeUnknown, "failed to persist telemetry ledger", err)
	}
	w.ledgers[sessionID] = records
	return nil
}
