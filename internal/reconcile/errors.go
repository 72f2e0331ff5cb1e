package reconcile

import (
	"errors"
	"fmt"

	"apkmerge/internal/restable"
)

var (
	// ErrTypeMismatch is returned when a split reuses an identifier the base
	// assigns to another resource type.
	ErrTypeMismatch = errors.New("resource type mismatch")

	// ErrUnresolvableConflict is returned when two names for one identifier
	// are both real or both placeholders.
	ErrUnresolvableConflict = errors.New("unresolvable resource name conflict")
)

// TypeMismatchError reports an identifier declared under two types.
type TypeMismatchError struct {
	Split     string
	ID        string
	SplitType string
	BaseType  string
	Name      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("split %s declares %s %s as %s, base declares it as %s",
		e.Split, e.ID, e.Name, e.SplitType, e.BaseType)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// ConflictError reports two names for one (type, id) that cannot be
// reconciled.
type ConflictError struct {
	Split     string
	Key       restable.Key
	SplitName string
	BaseName  string
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("split %s names %s %q, base names it %q: %s",
		e.Split, e.Key, e.SplitName, e.BaseName, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrUnresolvableConflict
}
