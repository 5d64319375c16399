package services

import (
	"fmt"
)

// ConflictError means a staged row's assumptions about the displaced
// operator no longer match durable state at commit time: another admin or
// process changed the vehicle since this session loaded its snapshot.
type ConflictError struct {
	BusID    string
	Expected string // driver uid the row assumed, "" for none
	Actual   string // driver uid durably assigned, "" for none
}

func (e *ConflictError) Error() string {
	expected := e.Expected
	if expected == "" {
		expected = "no driver"
	}
	actual := e.Actual
	if actual == "" {
		actual = "no driver"
	}
	return fmt.Sprintf("vehicle %s changed since staging: expected %s, found %s", e.BusID, expected, actual)
}

// RollbackError rejects a rollback attempt against a log entry that is not
// a committed, not-yet-reversed reassignment.
type RollbackError struct {
	OperationID string
	Reason      string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("cannot roll back %s: %s", e.OperationID, e.Reason)
}
