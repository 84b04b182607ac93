package ledger

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation  string
	CustomerID CustomerID
	Actor      Actor
	Amount     AmountCents
	EntryID    EntryID
	Status     string
	Kind       ErrorKind
	Error      error
	Duration   time.Duration
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithLockTimeout bounds how long an operation waits for the customer's lock.
func WithLockTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		if timeout > 0 {
			service.lockTimeout = timeout
		}
	}
}

// WithStatementLocation sets the time zone used for statement day boundaries.
func WithStatementLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

// WithEntryIDGenerator replaces the entry id source.
func WithEntryIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newEntryID = generate
		}
	}
}
