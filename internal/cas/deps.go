package cas

import (
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging for the storage core.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator abstracts file, folder and version ID generation.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Metrics receives counters from the storage core.
type Metrics interface {
	ChunkStored(size int64)
	DedupHit(size int64)
	ChunkReclaimed(size int64)
	UploadFinished(state string, elapsed time.Duration)
	RetryAttempted(op string)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) ChunkStored(int64)                    {}
func (NopMetrics) DedupHit(int64)                       {}
func (NopMetrics) ChunkReclaimed(int64)                 {}
func (NopMetrics) UploadFinished(string, time.Duration) {}
func (NopMetrics) RetryAttempted(string)                {}
