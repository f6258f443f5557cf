// Package ferrors defines the typed error taxonomy shared by every stage of
// the fleet manager: preconditions, registry I/O, filesystem, controller,
// and identity errors. Callers use errors.As to recover the concrete type
// at a task boundary and decide how to present it.
package ferrors

import (
	"errors"
	"fmt"
)

// PreconditionError is returned when an operation's preconditions are not
// met. It is surfaced immediately, before any mutation takes place.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// NewPreconditionError constructs a PreconditionError.
func NewPreconditionError(reason string) *PreconditionError {
	return &PreconditionError{Reason: reason}
}

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// RegistryIOError wraps a failure to load or save the registry document.
type RegistryIOError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *RegistryIOError) Error() string {
	return fmt.Sprintf("registry %s failed: %v", e.Op, e.Err)
}

func (e *RegistryIOError) Unwrap() error { return e.Err }

// ErrSchemaMismatch is returned when a registry document parses as YAML but
// does not carry the shape of a Registry document (including one missing a
// required top-level key), distinguishing a corrupt-but-parseable file
// from one that is merely missing optional fields the loader can default.
var ErrSchemaMismatch = errors.New("registry document does not match the expected schema")

// SchemaMismatchError wraps ErrSchemaMismatch with the offending path.
type SchemaMismatchError struct {
	Path string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, ErrSchemaMismatch)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// FilesystemError wraps a directory-create, binary-copy, or binary-remove
// failure encountered while provisioning or upgrading a service.
type FilesystemError struct {
	Op   string // "mkdir", "copy", "remove"
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s on %s failed: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ControllerError wraps a failure reported by the Service Controller
// Adapter for a specific service and operation.
type ControllerError struct {
	Service string
	Op      string // "install", "start", "stop", "uninstall"
	Err     error
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("%s: controller %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ControllerError) Unwrap() error { return e.Err }

// IdentityMismatchError is a per-service fatal error raised when a node's
// peer id after a restart does not match the identity expected going in
// (e.g. across an upgrade).
type IdentityMismatchError struct {
	Service  string
	Expected string
	Got      string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("%s: peer id mismatch: expected %s, got %s", e.Service, e.Expected, e.Got)
}

// NotFoundError represents a named resource (service, task) that does not
// exist in the registry or dispatcher.
type NotFoundError struct {
	ResourceType string
	ResourceName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.ResourceType, e.ResourceName)
}

// NewServiceNotFoundError creates a NotFoundError for a service.
func NewServiceNotFoundError(name string) *NotFoundError {
	return &NotFoundError{ResourceType: "service", ResourceName: name}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// BatchResult aggregates per-service outcomes for an operation that
// processes many services in one task (Add, Maintain, Upgrade, Reset).
// A batch is never fully rolled back on partial failure: Succeeded
// reflects services that were mutated and persisted; Failed carries the
// cause for every service that was not.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

// NewBatchResult returns an empty BatchResult ready for accumulation.
func NewBatchResult() *BatchResult {
	return &BatchResult{Failed: make(map[string]error)}
}

// AddSuccess records a successfully processed service.
func (b *BatchResult) AddSuccess(name string) {
	b.Succeeded = append(b.Succeeded, name)
}

// AddFailure records a failed service and its cause.
func (b *BatchResult) AddFailure(name string, err error) {
	b.Failed[name] = err
}

// HasFailures reports whether any service failed.
func (b *BatchResult) HasFailures() bool {
	return len(b.Failed) > 0
}

// Err returns a joined error over every failure, or nil if there were none,
// so callers can still use errors.Is/errors.As against an individual cause.
func (b *BatchResult) Err() error {
	if !b.HasFailures() {
		return nil
	}
	errs := make([]error, 0, len(b.Failed))
	for name, err := range b.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}
