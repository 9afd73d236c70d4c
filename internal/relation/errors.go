package relation

import (
	"errors"
	"fmt"
)

// UnknownAttributeError is returned when a constraint names a column that does
// not exist on the relation.
type UnknownAttributeError struct {
	Relation  string
	Attribute string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("unknown attribute %q on relation %s", e.Attribute, e.Relation)
}

// InvalidComparatorError is returned for a comparator outside the closed set,
// or when NULL is constrained with anything but "is" / "is not".
type InvalidComparatorError struct {
	Comparator string
}

func (e *InvalidComparatorError) Error() string {
	return fmt.Sprintf("invalid comparator %q", e.Comparator)
}

// InvalidValueError is returned for values that cannot constrain a field, such
// as a nil value paired with a comparator or a sequence containing nil.
type InvalidValueError struct {
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value: %s", e.Reason)
}

// ExpectedOneError is returned by Get when the constraint does not reference
// exactly one row.
type ExpectedOneError struct {
	Relation string
	Count    int64
}

func (e *ExpectedOneError) Error() string {
	plural := "s"
	if e.Count == 1 {
		plural = ""
	}
	return fmt.Sprintf("expected 1, got %d tuple%s on %s", e.Count, plural, e.Relation)
}

// NotASingletonError is returned when a singleton-only operation runs on a
// relation whose constraint does not resolve to a unique row.
type NotASingletonError struct {
	Err *ExpectedOneError
}

func (e *NotASingletonError) Error() string {
	return fmt.Sprintf("not a singleton: %s", e.Err.Error())
}

func (e *NotASingletonError) Unwrap() error { return e.Err }

// WrongForeignKeyError is returned when a foreign key alias mapping references
// a key that is not declared on the relation.
type WrongForeignKeyError struct {
	Relation string
	Fkey     string
}

func (e *WrongForeignKeyError) Error() string {
	return fmt.Sprintf("wrong foreign key %q on relation %s", e.Fkey, e.Relation)
}

// SafetyBarrierError is returned by Update and Delete when the relation is
// unconstrained and the all-rows variant was not requested.
type SafetyBarrierError struct {
	Relation  string
	Operation string
}

func (e *SafetyBarrierError) Error() string {
	return fmt.Sprintf("attempt to %s all rows of %s without using %sAll", e.Operation, e.Relation, e.Operation)
}

// ExecutorError wraps a driver failure that survived the single reconnect
// retry.
type ExecutorError struct {
	Err error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor: %v", e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }

// disconnected is implemented by executor errors caused by a broken
// connection. The engine retries such failures exactly once.
type disconnected interface {
	Disconnected() bool
}

func isDisconnect(err error) bool {
	var d disconnected
	return errors.As(err, &d) && d.Disconnected()
}
