package engine

import "fmt"

// Validation failures are typed so callers (HTTP handlers, the CLI) can map
// them to status codes without string matching.

type InvalidPositionError struct {
	Position int
	Max      int
}

func (e InvalidPositionError) Error() string {
	return fmt.Sprintf("position %d out of range 1..%d", e.Position, e.Max)
}

type InvalidQuantityError struct {
	Quantity float64
	Reason   string
}

func (e InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %g: %s", e.Quantity, e.Reason)
}

type InvalidTimeRangeError struct {
	Start string
	End   string
}

func (e InvalidTimeRangeError) Error() string {
	return fmt.Sprintf("end time %s precedes start time %s", e.End, e.Start)
}

type UnknownCapabilityCodeError struct {
	Code string
}

func (e UnknownCapabilityCodeError) Error() string {
	return fmt.Sprintf("unknown capability status code %q", e.Code)
}

type UnknownPriorityError struct {
	Priority string
}

func (e UnknownPriorityError) Error() string {
	return fmt.Sprintf("unknown priority %q", e.Priority)
}

// BelowIssuedError rejects shrinking a demand under what was already issued.
type BelowIssuedError struct {
	DemandID int64
	Required float64
	Issued   float64
}

func (e BelowIssuedError) Error() string {
	return fmt.Sprintf("demand %d: required quantity %g below issued %g", e.DemandID, e.Required, e.Issued)
}

type OverIssueError struct {
	DemandID  int64
	Requested float64
	Remaining float64
}

func (e OverIssueError) Error() string {
	return fmt.Sprintf("demand %d: issue of %g exceeds remaining %g", e.DemandID, e.Requested, e.Remaining)
}

type DemandStateError struct {
	DemandID int64
	Status   string
	Op       string
}

func (e DemandStateError) Error() string {
	return fmt.Sprintf("demand %d: cannot %s in status %s", e.DemandID, e.Op, e.Status)
}

type BlockerClosedError struct {
	BlockerID int64
}

func (e BlockerClosedError) Error() string {
	return fmt.Sprintf("blocker %d is already closed", e.BlockerID)
}

// EventCompletedError rejects any business mutation on a completed event.
type EventCompletedError struct {
	EventID int64
}

func (e EventCompletedError) Error() string {
	return fmt.Sprintf("maintenance event %d is completed", e.EventID)
}
