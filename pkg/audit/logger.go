package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage persists audit entries. Implementations must treat the log as
// append-only.
type Storage interface {
	Store(ctx context.Context, entry Entry) error
	// ListByUser returns the newest entries for a user, most recent first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)
}

// Logger is the write-side façade services use to record outcomes.
type Logger struct {
	storage Storage
	now     func() time.Time
}

// NewLogger creates a Logger. Panics on nil storage to fail fast at wiring time.
func NewLogger(storage Storage) *Logger {
	if storage == nil {
		panic("audit: storage is required")
	}
	return &Logger{storage: storage, now: time.Now}
}

// Log records a successful operation.
func (l *Logger) Log(ctx context.Context, operation string, userID uuid.UUID, opts ...EntryOption) error {
	return l.log(ctx, operation, userID, StatusSuccess, "", opts...)
}

// LogFailure records a failed operation with its error message.
func (l *Logger) LogFailure(ctx context.Context, operation string, userID uuid.UUID, cause error, opts ...EntryOption) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.log(ctx, operation, userID, StatusFailed, msg, opts...)
}

// LogReview records an operation that needs manual support intervention.
func (l *Logger) LogReview(ctx context.Context, operation string, userID uuid.UUID, reason string, opts ...EntryOption) error {
	return l.log(ctx, operation, userID, StatusRequiresReview, reason, opts...)
}

func (l *Logger) log(ctx context.Context, operation string, userID uuid.UUID, status Status, errMsg string, opts ...EntryOption) error {
	entry := Entry{
		ID:        uuid.New(),
		Operation: operation,
		UserID:    userID,
		Status:    status,
		Error:     errMsg,
		CreatedAt: l.now().UTC(),
	}
	for _, opt := range opts {
		opt(&entry)
	}

	if err := entry.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, entry)
}

// Reader exposes the query side of the audit trail.
type Reader struct {
	storage Storage
}

func NewReader(storage Storage) *Reader {
	if storage == nil {
		panic("audit: storage is required")
	}
	return &Reader{storage: storage}
}

// History returns a user's reconciliation history, most recent first.
func (r *Reader) History(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.storage.ListByUser(ctx, userID, limit)
}
